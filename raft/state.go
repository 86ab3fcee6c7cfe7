package raft

// Raft is a single node's consensus state machine. Methods on *Raft
// never block and never touch the network or the clock; they only
// read/mutate in-memory fields and return SideEffect descriptors for
// the driver to carry out. The teacher's RaftNode plays the same role
// but drives itself through a goroutine and time.Timer; here the clock
// and the I/O live entirely outside the type.
type Raft[T any] struct {
	cfg Config[T]

	role        RoleKind
	currentTerm Term
	votedFor    *NodeID
	leaderID    *NodeID
	log         []LogEntry[T] // log[i] is the entry at 1-based index i+1
	commitLen   LogIndex

	votesReceived map[NodeID]struct{}          // meaningful only when role == RoleCandidate
	replication   map[NodeID]*ReplicationState // meaningful only when role == RoleLeader
}

// NewRaft constructs a node in Follower, term 0, with an empty log.
// Start must be called once before any OnEvent call.
func NewRaft[T any](cfg Config[T]) *Raft[T] {
	if cfg.Rand == nil {
		panic("raft: Config.Rand must be a seeded generator")
	}
	return &Raft[T]{
		cfg:  cfg,
		role: RoleFollower,
	}
}

// Start returns the single SideEffect that arms the initial election
// timer. It must be called exactly once before any OnEvent call.
func (r *Raft[T]) Start() []SideEffect {
	return []SideEffect{r.setElectionTimer()}
}

// OnEvent is the sole mutator: it applies ev to the node and returns
// the side effects the caller must carry out.
func (r *Raft[T]) OnEvent(ev Event[T]) []SideEffect {
	switch ev.Kind {
	case EventTimerUp:
		return r.onTimerUp()
	case EventReceivedRPC:
		return r.onReceivedRPC(ev.RPC)
	default:
		panic("raft: unreachable event kind")
	}
}

func (r *Raft[T]) onTimerUp() []SideEffect {
	switch r.role {
	case RoleFollower, RoleCandidate:
		return r.startNewElection()
	case RoleLeader:
		return r.sendHeartbeat()
	default:
		panic("raft: unreachable role")
	}
}

func (r *Raft[T]) onReceivedRPC(rpc RPC) []SideEffect {
	switch msg := rpc.(type) {
	case VoteRequest:
		return r.handleVoteRequest(msg)
	case VoteResponse:
		return r.handleVoteResponse(msg)
	case ReplicateLogRequest[T]:
		return r.handleReplicateLogRequest(msg)
	case ReplicateLogResponse:
		return r.handleReplicateLogResponse(msg)
	case ProposeValueRequest[T]:
		return r.handleProposeValueRequest(msg)
	default:
		panic("raft: unreachable rpc variant")
	}
}

// Role returns the node's current role.
func (r *Raft[T]) Role() RoleKind { return r.role }

// CurrentTerm returns the highest term the node has observed.
func (r *Raft[T]) CurrentTerm() Term { return r.currentTerm }

// LeaderID returns the most recent leader the node has acknowledged, if
// any. It is cleared when the node observes a higher term in an RPC;
// starting its own election advances CurrentTerm but leaves it in place.
func (r *Raft[T]) LeaderID() (NodeID, bool) {
	if r.leaderID == nil {
		return "", false
	}
	return *r.leaderID, true
}

// CommitLen returns the length of the committed log prefix.
func (r *Raft[T]) CommitLen() LogIndex { return r.commitLen }

// Snapshot takes a side-effect-free copy of the node's state for tests
// and simulator observers.
func (r *Raft[T]) Snapshot() Snapshot[T] {
	logCopy := make([]LogEntry[T], len(r.log))
	copy(logCopy, r.log)

	var votedFor, leaderID *NodeID
	if r.votedFor != nil {
		v := *r.votedFor
		votedFor = &v
	}
	if r.leaderID != nil {
		v := *r.leaderID
		leaderID = &v
	}

	return Snapshot[T]{
		NodeID:      r.cfg.NodeID,
		Role:        r.role,
		CurrentTerm: r.currentTerm,
		VotedFor:    votedFor,
		LeaderID:    leaderID,
		Log:         logCopy,
		CommitLen:   r.commitLen,
	}
}
