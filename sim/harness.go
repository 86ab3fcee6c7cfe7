package sim

import (
	"time"

	"raftsim/raft"
)

// These helpers exist for tests and demo tooling: they express common
// waiting and fault-injection idioms in terms of Wait and
// SetRPCDropRatio so scenario tests read as intent rather than as
// hand-rolled polling loops.

// WaitForLeader advances the simulation until exactly one node reports
// itself Leader and every other node reports that node as its
// LeaderID, or timeout elapses. It returns that node's id and whether
// one was found.
func (s *Simulator[T]) WaitForLeader(timeout time.Duration) (raft.NodeID, bool) {
	var leader raft.NodeID
	found := s.Wait(func(s *Simulator[T]) bool {
		leaders := s.Leaders()
		if len(leaders) != 1 {
			return false
		}
		for _, id := range s.cfg.Cluster {
			if id == leaders[0] {
				continue
			}
			if seen, ok := s.nodes[id].raft.LeaderID(); !ok || seen != leaders[0] {
				return false
			}
		}
		leader = leaders[0]
		return true
	}, timeout)
	if !found {
		return "", false
	}
	return leader, true
}

// Leaders returns every node currently reporting itself Leader. More
// than one is a legitimate (if transient) observation during a
// partition; a caller checking election safety asserts len <= 1 at a
// single term, not that this always returns at most one node.
func (s *Simulator[T]) Leaders() []raft.NodeID {
	var out []raft.NodeID
	for _, id := range s.cfg.Cluster {
		if s.nodes[id].raft.Role() == raft.RoleLeader {
			out = append(out, id)
		}
	}
	return out
}

// WaitNodeValueCommitted advances the simulation until node has
// committed value among its observed committed values, or timeout
// elapses.
func (s *Simulator[T]) WaitNodeValueCommitted(node raft.NodeID, value T, eq func(a, b T) bool, timeout time.Duration) bool {
	return s.Wait(func(s *Simulator[T]) bool {
		slot, ok := s.nodes[node]
		if !ok {
			return false
		}
		for _, v := range slot.committedValues {
			if eq(v, value) {
				return true
			}
		}
		return false
	}, timeout)
}

// DisconnectNode fully isolates node from every other cluster member,
// in both directions — the common case of "this node is partitioned
// away".
func (s *Simulator[T]) DisconnectNode(node raft.NodeID) {
	for _, id := range s.cfg.Cluster {
		if id == node {
			continue
		}
		s.SetRPCDropRatio(node, id, 1)
		s.SetRPCDropRatio(id, node, 1)
	}
}

// ConnectNode restores node's link to every other cluster member, in
// both directions, to fully connected.
func (s *Simulator[T]) ConnectNode(node raft.NodeID) {
	for _, id := range s.cfg.Cluster {
		if id == node {
			continue
		}
		s.SetRPCDropRatio(node, id, 0)
		s.SetRPCDropRatio(id, node, 0)
	}
}

// DisconnectNodes cuts the link between a and b in both directions,
// leaving the rest of the cluster's connectivity untouched.
func (s *Simulator[T]) DisconnectNodes(a, b raft.NodeID) {
	s.SetRPCDropRatio(a, b, 1)
	s.SetRPCDropRatio(b, a, 1)
}

// ConnectNodes restores the link between a and b in both directions to
// fully connected.
func (s *Simulator[T]) ConnectNodes(a, b raft.NodeID) {
	s.SetRPCDropRatio(a, b, 0)
	s.SetRPCDropRatio(b, a, 0)
}
