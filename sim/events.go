package sim

import (
	"container/heap"
	"time"

	"raftsim/raft"
)

// VirtualTime is logical simulation time: a duration elapsed since the
// simulator's fixed epoch (clock starts at zero on New).
type VirtualTime = time.Duration

// timedEvent is the simulator's event-heap element:
// (virtual_time, node, sequence_index, event), totally ordered first by
// time, then node id, then sequence — never by wall clock.
type timedEvent[T any] struct {
	Time     VirtualTime
	Node     raft.NodeID
	Sequence uint64
	Event    raft.Event[T]
}

// eventHeap implements container/heap.Interface. No pack repository
// builds a discrete-event simulator's priority queue, so this reaches
// for the standard library's heap rather than a third-party
// alternative — see DESIGN.md.
type eventHeap[T any] []*timedEvent[T]

func (h eventHeap[T]) Len() int { return len(h) }

func (h eventHeap[T]) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.Node != b.Node {
		return a.Node < b.Node
	}
	return a.Sequence < b.Sequence
}

func (h eventHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap[T]) Push(x any) {
	*h = append(*h, x.(*timedEvent[T]))
}

func (h *eventHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func (h *eventHeap[T]) peek() *timedEvent[T] {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// nodeSlot is the simulator's per-node bookkeeping: the owned state
// machine, the sequence-index generator for events addressed to this
// node, the index of the most recently armed timer (for alias
// detection), and the committed values observed so far.
type nodeSlot[T any] struct {
	raft             *raft.Raft[T]
	nextEventIndex   uint64
	latestTimerIndex uint64
	committedValues  []T
}

func (n *nodeSlot[T]) nextSequence() uint64 {
	idx := n.nextEventIndex
	n.nextEventIndex++
	return idx
}

// pushTimer pushes onto h a TimerUp event and records its sequence
// index as the slot's latest — any older TimerUp still pending in the
// heap is now stale and must be dropped on dispatch (§4.2 "Timer
// aliasing").
func (n *nodeSlot[T]) pushTimer(h *eventHeap[T], node raft.NodeID, at VirtualTime) {
	idx := n.nextSequence()
	n.latestTimerIndex = idx
	heap.Push(h, &timedEvent[T]{Time: at, Node: node, Sequence: idx, Event: raft.TimerUpEvent[T]()})
}

func (n *nodeSlot[T]) pushRPC(h *eventHeap[T], node raft.NodeID, at VirtualTime, rpc raft.RPC) {
	idx := n.nextSequence()
	heap.Push(h, &timedEvent[T]{Time: at, Node: node, Sequence: idx, Event: raft.ReceivedRPCEvent[T](rpc)})
}

// isStaleTimer reports whether a popped TimerUp event is an older,
// superseded timer that must be dropped silently rather than
// delivered to the state machine.
func (n *nodeSlot[T]) isStaleTimer(ev *timedEvent[T]) bool {
	return ev.Event.Kind == raft.EventTimerUp && ev.Sequence != n.latestTimerIndex
}
