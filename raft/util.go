package raft

import (
	"fmt"
	"time"
)

// lastLogID returns the LogEntryID of the last entry, or (0, 0) for an
// empty log.
func (r *Raft[T]) lastLogID() LogEntryID {
	if len(r.log) == 0 {
		return LogEntryID{}
	}
	return LogEntryID{Term: r.log[len(r.log)-1].Term, Index: LogIndex(len(r.log))}
}

// termAt returns the term of the entry at a 1-based index, or 0 for
// index 0 ("before the first entry").
func (r *Raft[T]) termAt(index LogIndex) Term {
	if index == 0 {
		return 0
	}
	return r.log[index-1].Term
}

// setElectionTimer arms an election timer with the randomized duration
// §4.1 "Timers" requires: election_timeout plus jitter uniform in
// [0, election_timeout). Drawing from cfg.Rand rather than a
// thread-local source is what makes a seeded simulation reproducible.
func (r *Raft[T]) setElectionTimer() SideEffect {
	jitter := time.Duration(0)
	if r.cfg.ElectionTimeout > 0 {
		jitter = time.Duration(r.cfg.Rand.Int63n(int64(r.cfg.ElectionTimeout)))
	}
	return SetTimer{Duration: r.cfg.ElectionTimeout + jitter}
}

// setHeartbeatTimer arms a heartbeat timer with the exact configured
// interval — no jitter, unlike the election timer.
func (r *Raft[T]) setHeartbeatTimer() SideEffect {
	return SetTimer{Duration: r.cfg.HeartbeatInterval}
}

// FormatTerm formats a term for logging.
func FormatTerm(t Term) string { return fmt.Sprintf("T%d", t) }

// FormatIndex formats a log index for logging.
func FormatIndex(i LogIndex) string { return fmt.Sprintf("I%d", i) }

// FormatLogEntryID formats a LogEntryID for logging.
func FormatLogEntryID(id LogEntryID) string {
	return fmt.Sprintf("%s:%s", FormatTerm(id.Term), FormatIndex(id.Index))
}
