// Package eventlog keeps the append-only record of every operation the
// sandbox attempts, mirroring the log panel of the original UI.
package eventlog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dkellersch/authsandbox/pkg/idx"
)

// Entry is one recorded operation outcome. Entries are never mutated or
// removed individually.
type Entry struct {
	ID     idx.ID    `json:"id"`
	Origin string    `json:"origin"`
	Value  any       `json:"value"`
	At     time.Time `json:"at"`
}

// Log is an append-only, insertion-ordered record. Append never fails and is
// safe for interleaved use from multiple in-flight operations.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	logger  *slog.Logger
}

// New returns an empty log. Entries are echoed to logger at debug level.
func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Append records value under the named origin and returns the entry id.
func (l *Log) Append(origin string, value any) idx.ID {
	entry := Entry{
		ID:     idx.New(),
		Origin: origin,
		Value:  value,
		At:     time.Now().UTC(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.logger.Debug("event_log_append", "origin", origin, "entry_id", entry.ID.String())
	return entry.ID
}

// Entries returns a snapshot of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes every entry atomically. It is the only removal operation.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()

	l.logger.Debug("event_log_clear")
}
