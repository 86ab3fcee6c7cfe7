// Package sim is the discrete-event driver for the raft package: it
// owns the virtual clock, the event queue, per-link fault injection,
// and the committed-value log each node's ValueCommitted side effects
// accumulate into. It is the only place in this module that touches
// randomness for network behavior, orders events, or decides when a
// timer is stale — raft itself stays pure.
package sim

import (
	"container/heap"
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"raftsim/raft"
)

// Default timing constants shared by every seed scenario in this
// package's tests, and available to callers building their own
// clusters against a realistic baseline.
const (
	DefaultElectionTimeout   = 200 * time.Millisecond
	DefaultHeartbeatInterval = 50 * time.Millisecond
	DefaultRPCLatency        = 10 * time.Millisecond
)

// linkKey identifies a directed pair of nodes for the drop-ratio
// matrix. Missing entries default to a ratio of zero — a fully
// connected network unless told otherwise.
type linkKey struct {
	From, To raft.NodeID
}

// Config configures a new Simulator.
type Config[T any] struct {
	Cluster           []raft.NodeID
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	RPCLatency        time.Duration // fixed one-way network delay applied to every delivered RPC
	Rand              *rand.Rand    // shared by every node's election jitter and by drop-ratio sampling
	Logger            *Logger
}

// Simulator drives a fixed-membership cluster of raft.Raft[T] nodes
// through a deterministic, seed-reproducible event timeline.
type Simulator[T any] struct {
	cfg    Config[T]
	clock  VirtualTime
	events eventHeap[T]
	nodes  map[raft.NodeID]*nodeSlot[T]
	drop   map[linkKey]float64
	logger *Logger

	eventsDispatched int
}

// New constructs a Simulator with one Raft node per cfg.Cluster
// member, sharing a single Config.Rand instance across every node and
// the simulator's own drop sampling — the only source of randomness in
// a run, so one seed makes the whole run reproducible.
func New[T any](cfg Config[T]) *Simulator[T] {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}

	s := &Simulator[T]{
		cfg:    cfg,
		nodes:  make(map[raft.NodeID]*nodeSlot[T], len(cfg.Cluster)),
		drop:   make(map[linkKey]float64),
		logger: cfg.Logger,
	}
	for _, id := range cfg.Cluster {
		s.nodes[id] = &nodeSlot[T]{
			raft: raft.NewRaft(raft.Config[T]{
				NodeID:            id,
				Cluster:           cfg.Cluster,
				ElectionTimeout:   cfg.ElectionTimeout,
				HeartbeatInterval: cfg.HeartbeatInterval,
				Rand:              cfg.Rand,
			}),
		}
	}
	return s
}

// Start arms every node's initial election timer. Must be called
// exactly once before AdvanceTime or Wait.
func (s *Simulator[T]) Start() {
	for _, id := range s.cfg.Cluster {
		slot := s.nodes[id]
		effects := slot.raft.Start()
		s.applyEffects(id, effects)
	}
}

// Now reports the current virtual time.
func (s *Simulator[T]) Now() VirtualTime { return s.clock }

// EventsDispatched reports how many events have been delivered to a
// node's state machine so far (stale timers and dropped RPCs don't
// count — only events that actually reached OnEvent).
func (s *Simulator[T]) EventsDispatched() int { return s.eventsDispatched }

// AdvanceTime moves the virtual clock forward by duration, dispatching
// every event scheduled at or before the new time in (time, node,
// sequence) order.
func (s *Simulator[T]) AdvanceTime(duration time.Duration) {
	s.clock += duration
	for {
		item := s.events.peek()
		if item == nil || item.Time > s.clock {
			return
		}
		heap.Pop(&s.events)
		s.dispatch(item)
	}
}

// Wait pops and dispatches events — advancing the virtual clock to
// each one's time as it goes — until predicate reports true, no event
// is pending, or it has dispatched an event scheduled more than timeout
// after the call began (predicate is checked once more after that
// event). It returns whether predicate was satisfied.
func (s *Simulator[T]) Wait(predicate func(*Simulator[T]) bool, timeout time.Duration) bool {
	start := s.clock
	for !predicate(s) {
		item := s.events.peek()
		if item == nil {
			return false
		}
		heap.Pop(&s.events)
		s.clock = item.Time
		s.dispatch(item)
		if s.clock-start > timeout {
			return predicate(s)
		}
	}
	return true
}

func (s *Simulator[T]) dispatch(item *timedEvent[T]) {
	slot := s.nodes[item.Node]
	if slot.isStaleTimer(item) {
		s.logger.LogTimerStale(item.Node, item.Sequence)
		return
	}
	if item.Event.Kind == raft.EventTimerUp {
		s.logger.LogTimerFired(item.Node)
	} else {
		s.logger.LogRPCDelivered(rpcSender(item.Event.RPC), item.Node, item.Event.RPC)
	}

	beforeRole := slot.raft.Role()
	effects := slot.raft.OnEvent(item.Event)
	s.eventsDispatched++
	if after := slot.raft.Role(); after != beforeRole {
		s.logger.LogRoleChange(item.Node, after, slot.raft.CurrentTerm())
	}
	s.applyEffects(item.Node, effects)
}

// rpcSender recovers the originating node for logging purposes where
// the RPC type carries one; it's best-effort and only used for display.
func rpcSender(rpc raft.RPC) raft.NodeID {
	switch msg := rpc.(type) {
	case raft.VoteRequest:
		return msg.CandidateID
	case raft.VoteResponse:
		return msg.NodeID
	}
	return ""
}

func (s *Simulator[T]) applyEffects(node raft.NodeID, effects []raft.SideEffect) {
	slot := s.nodes[node]
	for _, effect := range effects {
		switch e := effect.(type) {
		case raft.SetTimer:
			slot.pushTimer(&s.events, node, s.clock+e.Duration)
			s.logger.LogTimerArmed(node, fmt.Sprintf("%v", e.Duration))
		case raft.SendRPC:
			s.sendRPC(node, e)
		case raft.ValueCommitted[T]:
			slot.committedValues = append(slot.committedValues, e.Value)
			s.logger.LogValueCommitted(node, raft.LogIndex(len(slot.committedValues)))
		default:
			panic("sim: unreachable side effect variant")
		}
	}
}

func (s *Simulator[T]) sendRPC(from raft.NodeID, e raft.SendRPC) {
	ratio := s.drop[linkKey{From: from, To: e.To}]
	if ratio > 0 && s.cfg.Rand.Float64() < ratio {
		s.logger.LogRPCDropped(from, e.To, e.RPC, ratio)
		return
	}
	dest, ok := s.nodes[e.To]
	if !ok {
		panic(fmt.Sprintf("sim: rpc from %q addressed to unknown node %q", from, e.To))
	}
	s.logger.LogRPCSent(from, e.To, e.RPC)
	dest.pushRPC(&s.events, e.To, s.clock+s.cfg.RPCLatency, e.RPC)
}

// ProposeValue schedules an immediate ProposeValueRequest on node,
// delivered at the current virtual time — a client call, not a network
// RPC, so it bypasses drop-ratio sampling and RPCLatency entirely.
func (s *Simulator[T]) ProposeValue(node raft.NodeID, value T) error {
	slot, ok := s.nodes[node]
	if !ok {
		return fmt.Errorf("sim: propose to unknown node %q", node)
	}
	slot.pushRPC(&s.events, node, s.clock, raft.ProposeValueRequest[T]{Value: value})
	return nil
}

// SetRPCDropRatio installs the probability, in [0, 1], that a future
// RPC sent from -> to is silently dropped instead of delivered. A
// ratio of 1 fully partitions the directed link; ratios are
// independent per direction, so a bidirectional partition needs both
// calls.
func (s *Simulator[T]) SetRPCDropRatio(from, to raft.NodeID, ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("sim: drop ratio %f out of range [0, 1]", ratio)
	}
	s.logger.LogNetworkPartition(from, to, ratio)
	s.drop[linkKey{From: from, To: to}] = ratio
	return nil
}

// GetRaftState returns a side-effect-free snapshot of node's consensus
// state.
func (s *Simulator[T]) GetRaftState(node raft.NodeID) (raft.Snapshot[T], error) {
	slot, ok := s.nodes[node]
	if !ok {
		return raft.Snapshot[T]{}, fmt.Errorf("sim: unknown node %q", node)
	}
	return slot.raft.Snapshot(), nil
}

// GetCommittedValues returns the values node has observed committed so
// far, in commit order.
func (s *Simulator[T]) GetCommittedValues(node raft.NodeID) ([]T, error) {
	slot, ok := s.nodes[node]
	if !ok {
		return nil, fmt.Errorf("sim: unknown node %q", node)
	}
	out := make([]T, len(slot.committedValues))
	copy(out, slot.committedValues)
	return out, nil
}
