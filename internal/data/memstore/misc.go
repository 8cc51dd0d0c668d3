package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

// ProjectView exposes the store's projects through the core.ProjectStore
// interface. Jobs and projects both key on GetByID, so the project side
// lives on its own receiver.
type ProjectView struct {
	s *Store
}

// Projects returns the store's core.ProjectStore implementation.
func (s *Store) Projects() *ProjectView {
	return &ProjectView{s: s}
}

// GetByID retrieves a project by its ID.
func (v *ProjectView) GetByID(_ context.Context, id string) (*model.Project, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	p, ok := v.s.projects[id]
	if !ok {
		return nil, data.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

// SetTimelinePath writes the timeline output path onto the project.
func (v *ProjectView) SetTimelinePath(_ context.Context, projectID, path string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	p, ok := v.s.projects[projectID]
	if !ok {
		return data.ErrProjectNotFound
	}
	p.TimelinePath = &path
	p.UpdatedAt = v.s.now()
	return nil
}

// Append writes one transition event for a job.
func (s *Store) Append(_ context.Context, params core.AppendJobEventParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[params.JobID] = append(s.events[params.JobID], &model.JobEvent{
		ID:        uuid.NewString(),
		JobID:     params.JobID,
		Stage:     params.Stage,
		Message:   params.Message,
		Metadata:  params.Metadata,
		CreatedAt: s.now(),
	})
	return nil
}

// ListByJob returns a job's transition events, oldest first.
func (s *Store) ListByJob(_ context.Context, jobID string, limit int) ([]*model.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[jobID]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]*model.JobEvent, len(events))
	for i, e := range events {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// AddDraft seeds a draft prompt.
func (s *Store) AddDraft(d *model.DraftPrompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.drafts[d.Token] = d
}

// Claim atomically assigns an unclaimed, unexpired draft to the user.
func (s *Store) Claim(_ context.Context, params core.ClaimDraftParams) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[params.Token]
	if !ok || d.UserID != nil || !d.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	now := s.now()
	userID := params.UserID
	d.UserID = &userID
	d.ClaimedAt = &now
	id := d.ID
	return &id, nil
}

// CleanupExpired deletes expired unclaimed drafts.
func (s *Store) CleanupExpired(_ context.Context, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, d := range s.drafts {
		if batchSize > 0 && n >= int64(batchSize) {
			break
		}
		if d.UserID == nil && !d.ExpiresAt.After(s.now()) {
			delete(s.drafts, token)
			n++
		}
	}
	return n, nil
}

// cacheEntry is a value with its expiry for the in-memory cache.
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache implements core.CacheRepository in memory.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   func() time.Time
}

// NewCache creates an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		clock:   time.Now,
	}
}

// Get retrieves a value; a missing or expired key returns nil, nil.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.clock().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value with the given TTL in seconds.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.clock().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}
