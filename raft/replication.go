package raft

// sendHeartbeat is the Leader's TimerUp handler: a replication round
// (possibly with empty entries) to every peer, followed by a fresh
// heartbeat timer.
func (r *Raft[T]) sendHeartbeat() []SideEffect {
	effects := r.replicateLogAllNodes()
	return append(effects, r.setHeartbeatTimer())
}

func (r *Raft[T]) replicateLogAllNodes() []SideEffect {
	peers := r.otherNodes()
	effects := make([]SideEffect, 0, len(peers))
	for _, peer := range peers {
		effects = append(effects, r.replicateLogTo(peer))
	}
	return effects
}

// replicateLogTo builds the ReplicateLogRequest for peer based on its
// current next_index. Only valid while leader.
func (r *Raft[T]) replicateLogTo(peer NodeID) SideEffect {
	rep, ok := r.replication[peer]
	if !ok {
		panic("raft: replicateLogTo called for unknown peer")
	}
	prevIndex := rep.NextIndex - 1
	entries := append([]LogEntry[T](nil), r.log[prevIndex:]...)
	return SendRPC{
		To: peer,
		RPC: ReplicateLogRequest[T]{
			LeaderID:  r.cfg.NodeID,
			Term:      r.currentTerm,
			PrevLog:   LogEntryID{Term: r.termAt(prevIndex), Index: prevIndex},
			Entries:   entries,
			CommitLen: r.commitLen,
		},
	}
}

// handleReplicateLogRequest implements §4.1 "ReplicateLogRequest (to a
// follower)".
func (r *Raft[T]) handleReplicateLogRequest(rpc ReplicateLogRequest[T]) []SideEffect {
	var effects []SideEffect

	termOK := rpc.Term >= r.currentTerm
	if termOK {
		effects = append(effects, r.setElectionTimer())
		r.maybeAdvanceTerm(rpc.Term)
		leader := rpc.LeaderID
		r.leaderID = &leader
	}

	logOK := LogIndex(len(r.log)) >= rpc.PrevLog.Index &&
		(rpc.PrevLog.Index == 0 || r.termAt(rpc.PrevLog.Index) == rpc.PrevLog.Term)
	success := termOK && logOK

	if success {
		r.log = append(r.log[:rpc.PrevLog.Index], rpc.Entries...)

		if rpc.CommitLen > r.commitLen {
			newCommitLen := rpc.CommitLen
			if logLen := LogIndex(len(r.log)); newCommitLen > logLen {
				newCommitLen = logLen
			}
			for i := r.commitLen + 1; i <= newCommitLen; i++ {
				effects = append(effects, ValueCommitted[T]{Value: r.log[i-1].Data})
			}
			r.commitLen = newCommitLen
		}
	}

	effects = append(effects, SendRPC{
		To: rpc.LeaderID,
		RPC: ReplicateLogResponse{
			NodeID:      r.cfg.NodeID,
			RequestTerm: rpc.Term,
			CurrentTerm: r.currentTerm,
			LogLen:      LogIndex(len(r.log)),
			Success:     success,
		},
	})
	return effects
}

// handleReplicateLogResponse implements §4.1 "ReplicateLogResponse (at
// leader)" including commit advancement.
func (r *Raft[T]) handleReplicateLogResponse(rpc ReplicateLogResponse) []SideEffect {
	if rpc.CurrentTerm > r.currentTerm {
		if r.maybeAdvanceTerm(rpc.CurrentTerm) {
			return []SideEffect{r.setElectionTimer()}
		}
		return nil
	}

	if r.currentTerm != rpc.RequestTerm || r.role != RoleLeader {
		return nil
	}

	rep, ok := r.replication[rpc.NodeID]
	if !ok {
		return nil
	}

	if rpc.Success {
		if rpc.LogLen > rep.MatchIndex {
			rep.MatchIndex = rpc.LogLen
		}
		rep.NextIndex = rep.MatchIndex + 1
		return r.tryAdvanceCommit()
	}

	if rep.NextIndex > 1 {
		rep.NextIndex--
	}
	return []SideEffect{r.replicateLogTo(rpc.NodeID)}
}

// tryAdvanceCommit implements §4.1 "Commit advancement at leader": the
// term-equality guard on the new commit index is what preserves
// leader-completeness (L3 in §8) — an entry from an earlier term is
// never committed purely by indirect majority replication.
func (r *Raft[T]) tryAdvanceCommit() []SideEffect {
	matchIndexes := make([]LogIndex, 0, len(r.replication)+1)
	matchIndexes = append(matchIndexes, LogIndex(len(r.log)))
	for _, rep := range r.replication {
		matchIndexes = append(matchIndexes, rep.MatchIndex)
	}
	sortDescending(matchIndexes)

	maj := majority(len(r.cfg.Cluster))
	n := matchIndexes[maj-1]

	if n <= r.commitLen || r.termAt(n) != r.currentTerm {
		return nil
	}

	effects := make([]SideEffect, 0, int(n-r.commitLen))
	for i := r.commitLen + 1; i <= n; i++ {
		effects = append(effects, ValueCommitted[T]{Value: r.log[i-1].Data})
	}
	r.commitLen = n
	return append(effects, r.replicateLogAllNodes()...)
}

// handleProposeValueRequest implements §4.1 "ProposeValueRequest".
func (r *Raft[T]) handleProposeValueRequest(rpc ProposeValueRequest[T]) []SideEffect {
	if r.role == RoleLeader {
		r.log = append(r.log, LogEntry[T]{Term: r.currentTerm, Data: rpc.Value})
		effects := r.replicateLogAllNodes()
		return append(effects, r.setHeartbeatTimer())
	}
	if r.leaderID != nil {
		return []SideEffect{SendRPC{To: *r.leaderID, RPC: ProposeValueRequest[T]{Value: rpc.Value}}}
	}
	return nil
}

func sortDescending(s []LogIndex) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] > s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
