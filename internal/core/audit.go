package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// audit.go — append-only audit trail.
//
// Every state change in the engine lands here: alert transitions, case
// mutations, automated actions and their outcomes, rejected inputs. Entries
// are totally ordered by a monotonic id with non-decreasing timestamps, and
// nothing is ever mutated or removed. When anyone asks "did isolation
// actually fire for alert X", this is the answer.
// ---------------------------------------------------------------------------

// ActorSystem is the actor recorded for transitions the engine makes itself.
const ActorSystem = "system"

// AuditEntry is one immutable audit record.
type AuditEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"` // analyst id or "system"
	Action     string    `json:"action"`
	TargetKind string    `json:"target_kind"` // "event", "alert", "case", "analyst", "actuator"
	TargetID   string    `json:"target_id"`
	Details    string    `json:"details,omitempty"`
}

// AuditQuery filters a read. Zero fields match everything.
type AuditQuery struct {
	From     time.Time
	To       time.Time
	Actor    string
	TargetID string
	Limit    int
}

// AuditSink receives a copy of every appended entry. Used to mirror the trail
// onto the event bus; must not block for long.
type AuditSink func(entry AuditEntry)

// AuditLog is the append-only store. Safe for concurrent writers and readers.
type AuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
	nextID  int64
	lastTS  time.Time
	logger  zerolog.Logger
	sinks   []AuditSink
}

// NewAuditLog creates an empty audit log.
func NewAuditLog(logger zerolog.Logger) *AuditLog {
	return &AuditLog{
		logger:  logger.With().Str("component", "audit_log").Logger(),
		entries: make([]AuditEntry, 0, 1024),
		nextID:  1,
	}
}

// AddSink registers a mirror for appended entries.
func (l *AuditLog) AddSink(sink AuditSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// Append records an entry. Always succeeds; the id and timestamp are assigned
// here so ordering invariants cannot be violated by callers. Timestamps are
// clamped to be non-decreasing even if the wall clock steps backwards.
func (l *AuditLog) Append(actor, action, targetKind, targetID, details string) AuditEntry {
	l.mu.Lock()

	ts := time.Now().UTC()
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}
	l.lastTS = ts

	entry := AuditEntry{
		ID:         l.nextID,
		Timestamp:  ts,
		Actor:      actor,
		Action:     action,
		TargetKind: targetKind,
		TargetID:   targetID,
		Details:    details,
	}
	l.nextID++
	l.entries = append(l.entries, entry)
	sinks := l.sinks
	l.mu.Unlock()

	l.logger.Debug().
		Int64("audit_id", entry.ID).
		Str("actor", actor).
		Str("action", action).
		Str("target", targetKind+":"+targetID).
		Msg("audit entry appended")

	for _, sink := range sinks {
		sink(entry)
	}
	return entry
}

// Query returns entries matching the filter, oldest first. A pure read; the
// returned slice is a copy and safe to hold.
func (l *AuditLog) Query(q AuditQuery) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]AuditEntry, 0, 64)
	for _, e := range l.entries {
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Timestamp.After(q.To) {
			continue
		}
		if q.Actor != "" && e.Actor != q.Actor {
			continue
		}
		if q.TargetID != "" && e.TargetID != q.TargetID {
			continue
		}
		result = append(result, e)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result
}

// Len returns the number of entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Tail returns the most recent n entries, oldest first.
func (l *AuditLog) Tail(n int) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]AuditEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}
