// Package memory keeps the per-task log of thoughts, actions, observations,
// and summaries that primes the planner.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/webpilot/task"
)

// EntryType classifies a memory entry.
type EntryType string

const (
	TypeThought     EntryType = "thought"
	TypeAction      EntryType = "action"
	TypeObservation EntryType = "observation"
	TypeSummary     EntryType = "summary"
)

// Entry is a single piece of task memory.
type Entry struct {
	Type      EntryType      `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DefaultRecentLimit is the conventional read window for callers that have no
// reason to choose their own.
const DefaultRecentLimit = 10

// Store holds append-only entry logs keyed by task id. Entries are unbounded;
// windowing happens at read time.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewStore creates an empty memory store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]Entry)}
}

// Remember appends an entry to the task's log, stamping it if unstamped.
func (s *Store) Remember(taskID string, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.entries[taskID] = append(s.entries[taskID], e)
	s.mu.Unlock()
}

// GetRecent returns the last limit entries in insertion order. A limit of
// zero or less returns everything.
func (s *Store) GetRecent(taskID string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[taskID]
	if limit <= 0 || limit >= len(all) {
		return append([]Entry(nil), all...)
	}
	return append([]Entry(nil), all[len(all)-limit:]...)
}

// Summarise builds a textual summary of the goal and the final observation,
// records it as a summary entry, and returns it. Used when a task terminates
// without the executor supplying its own summary.
func (s *Store) Summarise(t *task.Task, obs task.Observation) string {
	text := fmt.Sprintf("Goal: %s. Outcome: %s. %s", t.Goal, obs.Result, obs.Message)
	if len(obs.Data) > 0 {
		if data, err := json.Marshal(obs.Data); err == nil {
			text += " Data: " + string(data)
		}
	}
	s.Remember(t.ID, Entry{Type: TypeSummary, Content: text})
	return text
}

// Clear removes all entries for the task.
func (s *Store) Clear(taskID string) {
	s.mu.Lock()
	delete(s.entries, taskID)
	s.mu.Unlock()
}
