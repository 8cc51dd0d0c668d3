// Package memstore provides in-memory implementations of the core store
// interfaces for unit tests of the service, pipeline, and worker layers.
// Semantics mirror the Postgres repositories, including claim atomicity and
// the per-user reservation guarantee, guarded by a single mutex.
package memstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// Store implements every core store interface in memory.
type Store struct {
	mu sync.Mutex

	jobs     map[string]*model.Job
	jobOrder []string

	entries []*model.LedgerEntry

	projects map[string]*model.Project

	events map[string][]*model.JobEvent

	drafts map[string]*model.DraftPrompt

	clock func() time.Time
}

// New creates an empty Store using the system clock.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*model.Job),
		projects: make(map[string]*model.Project),
		events:   make(map[string][]*model.JobEvent),
		drafts:   make(map[string]*model.DraftPrompt),
		clock:    time.Now,
	}
}

// SetClock replaces the store's clock, for tests that control time.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	if j.Checkpoint != nil {
		cp.Checkpoint = append([]byte(nil), j.Checkpoint...)
	}
	return &cp
}

// AddProject seeds a project row.
func (s *Store) AddProject(p *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.projects[p.ID] = p
}

// Job returns a snapshot of a job for test assertions, or nil.
func (s *Store) Job(id string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return cloneJob(j)
}

// Entries returns a snapshot of the full ledger for test assertions.
func (s *Store) Entries() []*model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.LedgerEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}
