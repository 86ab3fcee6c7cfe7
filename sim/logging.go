package sim

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"raftsim/raft"
)

// Logger wraps a zap.SugaredLogger with the emoji-tagged, per-concern
// methods the teacher's raft.Logger exposed. Where the teacher logged
// from inside the consensus goroutine, these calls are made by the
// simulator as it interprets side effects and dispatches events — the
// core itself never logs anything.
type Logger struct {
	z *zap.SugaredLogger
}

// NewLogger builds a development zap logger (debug level, console
// output); if that fails it falls back to a no-op. NewNopLogger is preferred
// in tests to keep output quiet.
func NewLogger() *Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.Sugar()}
}

// NewNopLogger discards everything; the default for Simulator when no
// Logger is configured.
func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

func (l *Logger) LogTimerArmed(node raft.NodeID, kind string) {
	l.z.Debugw("⏲️  timer armed", "node", node, "kind", kind)
}

func (l *Logger) LogTimerFired(node raft.NodeID) {
	l.z.Debugw("⏰ timer fired", "node", node)
}

func (l *Logger) LogTimerStale(node raft.NodeID, sequence uint64) {
	l.z.Debugw("🗑️  stale timer discarded", "node", node, "sequence", sequence)
}

func (l *Logger) LogRoleChange(node raft.NodeID, role raft.RoleKind, term raft.Term) {
	switch role {
	case raft.RoleCandidate:
		l.z.Infow("🗳️  became candidate", "node", node, "term", raft.FormatTerm(term))
	case raft.RoleLeader:
		l.z.Infow("👑 became leader", "node", node, "term", raft.FormatTerm(term))
	case raft.RoleFollower:
		l.z.Infow("🙇 reverted to follower", "node", node, "term", raft.FormatTerm(term))
	}
}

func (l *Logger) LogRPCSent(from, to raft.NodeID, rpc raft.RPC) {
	l.z.Debugw("📤 rpc sent", "from", from, "to", to, "type", rpcName(rpc))
}

func (l *Logger) LogRPCDelivered(from, to raft.NodeID, rpc raft.RPC) {
	l.z.Debugw("📥 rpc delivered", "from", from, "to", to, "type", rpcName(rpc))
}

func (l *Logger) LogRPCDropped(from, to raft.NodeID, rpc raft.RPC, ratio float64) {
	l.z.Infow("💢 rpc dropped", "from", from, "to", to, "type", rpcName(rpc), "ratio", ratio)
}

func (l *Logger) LogValueCommitted(node raft.NodeID, index raft.LogIndex) {
	l.z.Infow("✅ value committed", "node", node, "index", raft.FormatIndex(index))
}

func (l *Logger) LogNetworkPartition(a, b raft.NodeID, ratio float64) {
	l.z.Warnw("🔌 link ratio changed", "a", a, "b", b, "ratio", ratio)
}

// rpcName strips the package qualifier and generic instantiation from
// the RPC's dynamic type, e.g. "raft.ReplicateLogRequest[int]" becomes
// "ReplicateLogRequest". Generic RPC variants can't all be named with a
// single type switch case across arbitrary T, so this reaches for
// fmt.Sprintf("%T", ...) instead.
func rpcName(rpc raft.RPC) string {
	name := fmt.Sprintf("%T", rpc)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}
