// Package raft implements a Maelstrom-compatible Raft consensus state
// machine: a pure function from (state, event) to (state, side effects).
// The type never performs I/O, never blocks, and never reads a clock —
// every external effect it wants is described by a returned SideEffect
// and carried out by a driver such as the sim package.
package raft

import (
	"time"

	"golang.org/x/exp/rand"
)

// NodeID identifies a cluster member. It is opaque to the state machine.
type NodeID string

// Term is a monotonically non-decreasing logical epoch. Zero means "no
// term observed yet".
type Term uint64

// LogIndex is a 1-based position in the replicated log. Zero denotes
// "before the first entry".
type LogIndex uint64

// LogEntryID identifies a log entry cluster-wide. LogEntryIDs are
// ordered lexicographically by (Term, Index).
type LogEntryID struct {
	Term  Term
	Index LogIndex
}

// Less reports whether id sorts strictly before other under the
// (Term, Index) ordering §4.1 requires for up-to-date-log comparisons.
func (id LogEntryID) Less(other LogEntryID) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

// LogEntry is a single replicated record. Data is an opaque payload
// supplied by the client proposing it; the state machine never
// inspects it.
type LogEntry[T any] struct {
	Term Term
	Data T
}

// RoleKind names the three Raft roles. Candidate- and Leader-only
// bookkeeping (votes received, per-peer replication progress) lives
// directly on Raft rather than behind a tagged union, mirroring how the
// teacher's RaftNode keeps nextIndex/matchIndex present on the struct
// at all times; it is meaningful only while Role() reports the
// matching kind.
type RoleKind int

const (
	RoleFollower RoleKind = iota
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// ReplicationState is the leader's per-peer replication progress.
type ReplicationState struct {
	NextIndex  LogIndex
	MatchIndex LogIndex
}

// RPC is the closed set of messages nodes exchange. Concrete types are
// VoteRequest, VoteResponse, ReplicateLogRequest[T], ReplicateLogResponse,
// and ProposeValueRequest[T].
type RPC interface {
	isRPC()
}

// VoteRequest is broadcast by a candidate at the start of an election.
type VoteRequest struct {
	CandidateID NodeID
	Term        Term
	LastLog     LogEntryID
}

func (VoteRequest) isRPC() {}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	NodeID      NodeID
	VoteGranted bool
	CurrentTerm Term
}

func (VoteResponse) isRPC() {}

// ReplicateLogRequest carries a replication round (heartbeat when
// Entries is empty) from a leader to one follower.
type ReplicateLogRequest[T any] struct {
	LeaderID  NodeID
	Term      Term
	PrevLog   LogEntryID
	Entries   []LogEntry[T]
	CommitLen LogIndex
}

func (ReplicateLogRequest[T]) isRPC() {}

// ReplicateLogResponse answers a ReplicateLogRequest. RequestTerm is the
// term the request carried, used by the leader to discard stale
// responses from a term it has since left.
type ReplicateLogResponse struct {
	NodeID      NodeID
	RequestTerm Term
	CurrentTerm Term
	LogLen      LogIndex
	Success     bool
}

func (ReplicateLogResponse) isRPC() {}

// ProposeValueRequest asks the recipient to append Value to the
// replicated log. Sent by a client to any node; forwarded to the
// leader if the recipient is a follower that knows one.
type ProposeValueRequest[T any] struct {
	Value T
}

func (ProposeValueRequest[T]) isRPC() {}

// EventKind names the two inputs the state machine accepts.
type EventKind int

const (
	EventTimerUp EventKind = iota
	EventReceivedRPC
)

// Event is an input delivered to a node: either a timer firing or an
// RPC arrival. RPC is populated only when Kind is EventReceivedRPC.
type Event[T any] struct {
	Kind EventKind
	RPC  RPC
}

// TimerUpEvent builds the event a driver delivers when a previously
// installed SetTimer expires.
func TimerUpEvent[T any]() Event[T] {
	return Event[T]{Kind: EventTimerUp}
}

// ReceivedRPCEvent builds the event a driver delivers when rpc arrives
// from the network (or, here, from the simulator's virtual transport).
func ReceivedRPCEvent[T any](rpc RPC) Event[T] {
	return Event[T]{Kind: EventReceivedRPC, RPC: rpc}
}

// SideEffect is the closed set of things a state transition asks its
// environment to do. The state machine never performs any of these
// itself. Concrete types are SetTimer, SendRPC, and ValueCommitted[T].
type SideEffect interface {
	isSideEffect()
}

// SetTimer installs a timer that overrides any previously outstanding
// one for the node (§4.1 "Timer cancellation without cancel
// primitives": the driver realizes this as a replace via timer
// aliasing, not a literal cancel).
type SetTimer struct {
	Duration time.Duration
}

func (SetTimer) isSideEffect() {}

// SendRPC requests delivery of RPC to node To.
type SendRPC struct {
	To  NodeID
	RPC RPC
}

func (SendRPC) isSideEffect() {}

// ValueCommitted reports that Value, the payload of a log entry, just
// entered the committed prefix. Emitted in strict index order; never
// coalesced, never skipped.
type ValueCommitted[T any] struct {
	Value T
}

func (ValueCommitted[T]) isSideEffect() {}

// Config configures a new Raft instance. Rand must be a seeded
// generator so election-timer jitter is reproducible from a seed — the
// teacher's own raft.Config takes its timing fields the same way;
// Rand is this spec's one addition (§5 "Randomness injection").
type Config[T any] struct {
	NodeID            NodeID
	Cluster           []NodeID // includes self
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	Rand              *rand.Rand
}

// Snapshot is a point-in-time, side-effect-free read of a node's
// internal state, for tests and simulator observers that need more
// than the Role/CurrentTerm/LeaderID accessors expose.
type Snapshot[T any] struct {
	NodeID      NodeID
	Role        RoleKind
	CurrentTerm Term
	VotedFor    *NodeID
	LeaderID    *NodeID
	Log         []LogEntry[T]
	CommitLen   LogIndex
}
