package raft

// startNewElection begins a new term's election: it becomes a
// candidate, votes for itself, and broadcasts VoteRequest to every
// other cluster member. Entered both from a Follower's and a
// Candidate's own election-timer expiry.
func (r *Raft[T]) startNewElection() []SideEffect {
	r.role = RoleCandidate
	r.votesReceived = map[NodeID]struct{}{r.cfg.NodeID: {}}
	r.replication = nil
	r.currentTerm++
	self := r.cfg.NodeID
	r.votedFor = &self

	// A lone node is already its own majority: the self-vote counted
	// above satisfies the same "|votes_received| >= majority" test a
	// peer's VoteResponse would, so it must trigger the same
	// transition rather than wait for a VoteResponse that will never
	// arrive (no peers to send VoteRequest to).
	if len(r.votesReceived) >= majority(len(r.cfg.Cluster)) {
		r.transitionToLeader()
		effects := r.replicateLogAllNodes()
		return append(effects, r.setHeartbeatTimer())
	}

	effects := make([]SideEffect, 0, len(r.cfg.Cluster))
	lastLog := r.lastLogID()
	for _, peer := range r.otherNodes() {
		effects = append(effects, SendRPC{
			To: peer,
			RPC: VoteRequest{
				CandidateID: r.cfg.NodeID,
				Term:        r.currentTerm,
				LastLog:     lastLog,
			},
		})
	}
	effects = append(effects, r.setElectionTimer())
	return effects
}

// transitionToLeader moves a candidate that just won an election into
// the Leader role, initializing per-peer replication progress to the
// node's own log length (§4.1 "On becoming leader").
func (r *Raft[T]) transitionToLeader() {
	r.role = RoleLeader
	self := r.cfg.NodeID
	r.votedFor = &self
	r.leaderID = &self
	r.votesReceived = nil

	r.replication = make(map[NodeID]*ReplicationState, len(r.cfg.Cluster)-1)
	lastIndex := LogIndex(len(r.log))
	for _, peer := range r.otherNodes() {
		r.replication[peer] = &ReplicationState{NextIndex: lastIndex + 1, MatchIndex: 0}
	}
}

// handleVoteRequest implements §4.1 "VoteRequest handling (receiver)".
func (r *Raft[T]) handleVoteRequest(rpc VoteRequest) []SideEffect {
	termOK := rpc.Term >= r.currentTerm
	advancedTerm := r.maybeAdvanceTerm(rpc.Term)

	voteOK := r.votedFor == nil || *r.votedFor == rpc.CandidateID
	logOK := !rpc.LastLog.Less(r.lastLogID())
	voteGranted := termOK && voteOK && logOK

	if voteGranted && r.votedFor == nil {
		candidate := rpc.CandidateID
		r.votedFor = &candidate
	}

	var effects []SideEffect
	if voteGranted || advancedTerm {
		effects = append(effects, r.setElectionTimer())
	}
	effects = append(effects, SendRPC{
		To: rpc.CandidateID,
		RPC: VoteResponse{
			NodeID:      r.cfg.NodeID,
			VoteGranted: voteGranted,
			CurrentTerm: r.currentTerm,
		},
	})
	return effects
}

// handleVoteResponse implements §4.1 "VoteResponse handling (candidate)".
func (r *Raft[T]) handleVoteResponse(rpc VoteResponse) []SideEffect {
	if rpc.CurrentTerm == r.currentTerm && rpc.VoteGranted && r.role == RoleCandidate {
		r.votesReceived[rpc.NodeID] = struct{}{}
		if len(r.votesReceived) >= majority(len(r.cfg.Cluster)) {
			r.transitionToLeader()
			effects := r.replicateLogAllNodes()
			effects = append(effects, r.setHeartbeatTimer())
			return effects
		}
		return nil
	}
	if rpc.CurrentTerm > r.currentTerm {
		if r.maybeAdvanceTerm(rpc.CurrentTerm) {
			return []SideEffect{r.setElectionTimer()}
		}
	}
	return nil
}

// maybeAdvanceTerm advances current_term and resets role/voted_for/
// leader_id when term is strictly newer, per the rule repeated
// throughout §4.1 ("advance term, become follower, clear voted_for").
// It reports whether it advanced anything.
func (r *Raft[T]) maybeAdvanceTerm(term Term) bool {
	if term <= r.currentTerm {
		return false
	}
	r.currentTerm = term
	r.role = RoleFollower
	r.votedFor = nil
	r.leaderID = nil
	r.votesReceived = nil
	r.replication = nil
	return true
}

func (r *Raft[T]) otherNodes() []NodeID {
	others := make([]NodeID, 0, len(r.cfg.Cluster))
	for _, id := range r.cfg.Cluster {
		if id != r.cfg.NodeID {
			others = append(others, id)
		}
	}
	return others
}

// majority computes the strict majority of a cluster of size n:
// ⌊n/2⌋+1, equivalently ⌈(n+1)/2⌉. The integer expression (n+1)/2 is
// not the same thing: it yields ⌈n/2⌉, one short for even n.
func majority(n int) int {
	return n/2 + 1
}
