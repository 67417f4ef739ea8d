package task

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps all tasks in memory for the lifetime of the process. A restart
// loses every task. All access is serialized on the store's mutex; reads hand
// out clones so callers never observe a task mid-mutation.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Create persists a new pending task for the given goal and returns a clone.
func (s *Store) Create(goal string, tc *Context) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New().String(),
		Goal:      goal,
		Status:    StatusPending,
		Steps:     []*Step{},
		Context:   tc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t.Clone()
}

// Get retrieves a clone of the task by ID.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return t.Clone(), nil
}

// List returns clones of all tasks in reverse-chronological creation order.
func (s *Store) List() []*Task {
	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Apply runs fn against the live task under the store lock, touches
// UpdatedAt, and returns a clone reflecting the mutation. Every state
// transition on a task or its steps goes through here.
func (s *Store) Apply(id string, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	return t.Clone(), nil
}

// NewStep builds a step positioned at the given index.
func NewStep(index int, action Action, thought string) *Step {
	now := time.Now().UTC()
	return &Step{
		ID:           uuid.New().String(),
		Index:        index,
		Status:       StatusRunning,
		Action:       action,
		ModelThought: thought,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
