package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func newTestNode(id NodeID, cluster []NodeID) *Raft[int] {
	return NewRaft(Config[int]{
		NodeID:            id,
		Cluster:           cluster,
		ElectionTimeout:   200,
		HeartbeatInterval: 50,
		Rand:              rand.New(rand.NewSource(1)),
	})
}

func sendRPCs(effects []SideEffect) []SendRPC {
	var out []SendRPC
	for _, e := range effects {
		if s, ok := e.(SendRPC); ok {
			out = append(out, s)
		}
	}
	return out
}

func committedValues(effects []SideEffect) []int {
	var out []int
	for _, e := range effects {
		if c, ok := e.(ValueCommitted[int]); ok {
			out = append(out, c.Value)
		}
	}
	return out
}

func TestInitialState(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	require.Equal(t, RoleFollower, n.Role())
	require.Equal(t, Term(0), n.CurrentTerm())

	effects := n.Start()
	require.Len(t, effects, 1)
	_, ok := effects[0].(SetTimer)
	require.True(t, ok, "Start must emit exactly one SetTimer")
}

func TestSingleNodeBecomesLeaderOnOwnTimeout(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1"})
	n.Start()

	effects := n.OnEvent(TimerUpEvent[int]())

	require.Equal(t, RoleLeader, n.Role())
	require.Equal(t, Term(1), n.CurrentTerm())
	// No peers: no SendRPC, just the heartbeat timer.
	require.Empty(t, sendRPCs(effects))
}

func TestFollowerBecomesCandidateOnTimeout(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()

	effects := n.OnEvent(TimerUpEvent[int]())

	require.Equal(t, RoleCandidate, n.Role())
	require.Equal(t, Term(1), n.CurrentTerm())
	rpcs := sendRPCs(effects)
	require.Len(t, rpcs, 2)
	for _, s := range rpcs {
		vr, ok := s.RPC.(VoteRequest)
		require.True(t, ok)
		require.Equal(t, Term(1), vr.Term)
		require.Equal(t, NodeID("n1"), vr.CandidateID)
	}
}

func TestVoteGrantedOnlyOncePerTerm(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()

	effects := n.OnEvent(ReceivedRPCEvent[int](VoteRequest{
		CandidateID: "n2",
		Term:        1,
		LastLog:     LogEntryID{},
	}))
	rpcs := sendRPCs(effects)
	require.Len(t, rpcs, 1)
	resp := rpcs[0].RPC.(VoteResponse)
	require.True(t, resp.VoteGranted)

	// A second candidate in the same term must be denied (L2).
	effects = n.OnEvent(ReceivedRPCEvent[int](VoteRequest{
		CandidateID: "n3",
		Term:        1,
		LastLog:     LogEntryID{},
	}))
	rpcs = sendRPCs(effects)
	require.Len(t, rpcs, 1)
	resp = rpcs[0].RPC.(VoteResponse)
	require.False(t, resp.VoteGranted)
}

func TestVoteDeniedForStaleTerm(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	n.OnEvent(TimerUpEvent[int]()) // becomes candidate, term 1

	effects := n.OnEvent(ReceivedRPCEvent[int](VoteRequest{
		CandidateID: "n2",
		Term:        0,
		LastLog:     LogEntryID{},
	}))
	rpcs := sendRPCs(effects)
	resp := rpcs[len(rpcs)-1].RPC.(VoteResponse)
	require.False(t, resp.VoteGranted)
	require.Equal(t, Term(1), resp.CurrentTerm)
}

func TestVoteDeniedWhenCandidateLogIsBehind(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	// Give n1 a log entry at term 1 so its last log id is (1, 1).
	n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID:  "n2",
		Term:      1,
		PrevLog:   LogEntryID{},
		Entries:   []LogEntry[int]{{Term: 1, Data: 7}},
		CommitLen: 0,
	}))

	effects := n.OnEvent(ReceivedRPCEvent[int](VoteRequest{
		CandidateID: "n3",
		Term:        1,
		LastLog:     LogEntryID{Term: 0, Index: 0},
	}))
	resp := sendRPCs(effects)[0].RPC.(VoteResponse)
	require.False(t, resp.VoteGranted, "candidate with an older log must not win the vote")
}

func threeNodeLeader(t *testing.T) *Raft[int] {
	t.Helper()
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	n.OnEvent(TimerUpEvent[int]()) // n1 becomes candidate, term 1

	effects := n.OnEvent(ReceivedRPCEvent[int](VoteResponse{
		NodeID:      "n2",
		VoteGranted: true,
		CurrentTerm: 1,
	}))
	require.Equal(t, RoleLeader, n.Role())
	_ = effects
	return n
}

func TestCandidateBecomesLeaderOnMajority(t *testing.T) {
	n := threeNodeLeader(t)
	require.Equal(t, Term(1), n.CurrentTerm())
}

func TestProposeAppendsAndReplicatesFromLeader(t *testing.T) {
	n := threeNodeLeader(t)

	effects := n.OnEvent(ReceivedRPCEvent[int](ProposeValueRequest[int]{Value: 42}))
	rpcs := sendRPCs(effects)
	require.Len(t, rpcs, 2)
	for _, s := range rpcs {
		req := s.RPC.(ReplicateLogRequest[int])
		require.Len(t, req.Entries, 1)
		require.Equal(t, 42, req.Entries[0].Data)
	}
	require.Equal(t, 1, len(n.Snapshot().Log))
}

func TestProposeFromFollowerForwardsToLeader(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID:  "n2",
		Term:      1,
		PrevLog:   LogEntryID{},
		Entries:   nil,
		CommitLen: 0,
	}))

	effects := n.OnEvent(ReceivedRPCEvent[int](ProposeValueRequest[int]{Value: 9}))
	rpcs := sendRPCs(effects)
	require.Len(t, rpcs, 1)
	require.Equal(t, NodeID("n2"), rpcs[0].To)
	fwd := rpcs[0].RPC.(ProposeValueRequest[int])
	require.Equal(t, 9, fwd.Value)
}

func TestProposeDroppedWithoutKnownLeader(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()

	effects := n.OnEvent(ReceivedRPCEvent[int](ProposeValueRequest[int]{Value: 9}))
	require.Empty(t, effects)
}

func TestCommitAdvancesOnMajorityReplication(t *testing.T) {
	n := threeNodeLeader(t)
	n.OnEvent(ReceivedRPCEvent[int](ProposeValueRequest[int]{Value: 42}))

	// n2 acks: together with the leader's own copy that is 2 of 3, a majority.
	effects := n.OnEvent(ReceivedRPCEvent[int](ReplicateLogResponse{
		NodeID:      "n2",
		RequestTerm: 1,
		CurrentTerm: 1,
		LogLen:      1,
		Success:     true,
	}))
	require.Equal(t, []int{42}, committedValues(effects))
	require.Equal(t, LogIndex(1), n.CommitLen())
}

func TestReplicateLogRequestTruncatesDivergentSuffix(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID: "n2", Term: 1, PrevLog: LogEntryID{},
		Entries: []LogEntry[int]{{Term: 1, Data: 1}, {Term: 1, Data: 2}},
	}))
	require.Equal(t, []int{1, 2}, logValues(n))

	// A new leader in term 2 overwrites index 2 with a different entry.
	n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID: "n3", Term: 2, PrevLog: LogEntryID{Term: 1, Index: 1},
		Entries: []LogEntry[int]{{Term: 2, Data: 99}},
	}))
	require.Equal(t, []int{1, 99}, logValues(n))
}

func TestReplicateLogRequestRejectedOnMismatchedPrevLog(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()

	effects := n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID: "n2", Term: 1, PrevLog: LogEntryID{Term: 1, Index: 1},
		Entries: []LogEntry[int]{{Term: 1, Data: 1}},
	}))
	resp := sendRPCs(effects)[0].RPC.(ReplicateLogResponse)
	require.False(t, resp.Success)
	require.Empty(t, logValues(n))
}

func TestLeaderStepsDownOnHigherTerm(t *testing.T) {
	n := threeNodeLeader(t)

	effects := n.OnEvent(ReceivedRPCEvent[int](ReplicateLogResponse{
		NodeID: "n3", RequestTerm: 1, CurrentTerm: 5, LogLen: 0, Success: false,
	}))
	require.Equal(t, RoleFollower, n.Role())
	require.Equal(t, Term(5), n.CurrentTerm())
	require.Len(t, effects, 1)
	_, ok := effects[0].(SetTimer)
	require.True(t, ok)
}

func TestReplicateLogRequestNoOpWhenAlreadyMatched(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID: "n2", Term: 1, PrevLog: LogEntryID{},
		Entries: []LogEntry[int]{{Term: 1, Data: 1}}, CommitLen: 1,
	}))
	require.Equal(t, []int{1}, logValues(n))
	require.Equal(t, LogIndex(1), n.CommitLen())

	effects := n.OnEvent(ReceivedRPCEvent[int](ReplicateLogRequest[int]{
		LeaderID: "n2", Term: 1, PrevLog: LogEntryID{Term: 1, Index: 1},
		Entries: nil, CommitLen: 1,
	}))
	require.Equal(t, []int{1}, logValues(n))
	require.Equal(t, LogIndex(1), n.CommitLen())
	require.Empty(t, committedValues(effects))
	resp := sendRPCs(effects)[0].RPC.(ReplicateLogResponse)
	require.True(t, resp.Success)
}

func TestReDeliveringAppliedReplicateLogRequestIsNoOp(t *testing.T) {
	n := newTestNode("n1", []NodeID{"n1", "n2", "n3"})
	n.Start()
	req := ReplicateLogRequest[int]{
		LeaderID: "n2", Term: 1, PrevLog: LogEntryID{},
		Entries: []LogEntry[int]{{Term: 1, Data: 1}}, CommitLen: 1,
	}
	first := n.OnEvent(ReceivedRPCEvent[int](req))
	require.Equal(t, []int{1}, committedValues(first))

	second := n.OnEvent(ReceivedRPCEvent[int](req))
	require.Equal(t, []int{1}, logValues(n))
	require.Equal(t, LogIndex(1), n.CommitLen())
	require.Empty(t, committedValues(second), "re-delivering an already-applied request must not re-emit ValueCommitted")
}

func logValues(n *Raft[int]) []int {
	snap := n.Snapshot()
	out := make([]int, len(snap.Log))
	for i, e := range snap.Log {
		out[i] = e.Data
	}
	return out
}
