package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCap bounds the number of entries a sink retains.
const DefaultCap = 50

// Entry types mirror the operator dashboard severity buckets.
const (
	TypeInfo     = "info"
	TypeSuccess  = "success"
	TypeWarning  = "warning"
	TypeError    = "error"
	TypeDecision = "decision"
)

// SystemProgramID marks entries that are not scoped to a single program.
const SystemProgramID = int64(-1)

// Entry is one appended audit record. The trail is a core deliverable: every
// payout decision must be reconstructable from it.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ProgramID   int64     `json:"programId"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Description string    `json:"description,omitempty"`
	TxHash      string    `json:"txHash,omitempty"`
}

// Sink is an append-only log with a retention cap. Recent returns entries
// newest first.
type Sink interface {
	Append(entry Entry) error
	Recent(limit int) ([]Entry, error)
}

// MemorySink retains the most recent entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// NewMemorySink constructs a sink capped at DefaultCap entries.
func NewMemorySink() *MemorySink {
	return NewMemorySinkWithCap(DefaultCap)
}

// NewMemorySinkWithCap constructs a sink with a custom retention cap.
func NewMemorySinkWithCap(cap int) *MemorySink {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &MemorySink{cap: cap}
}

// Append stores the entry, assigning an ID and timestamp when absent.
func (s *MemorySink) Append(entry Entry) error {
	stamp(&entry)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > s.cap {
		s.entries = s.entries[:s.cap]
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything retained.
func (s *MemorySink) Recent(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[:limit])
	return out, nil
}

func stamp(entry *Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
}
