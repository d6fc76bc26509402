package store

import (
	"context"
	"sync"
	"time"

	"textadapt/pkg/domain"
)

// MemoryStore keeps jobs and profiles in-process. Intended for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]domain.AdaptationJob
	profiles map[string]domain.ReadingProfile
	now      func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]domain.AdaptationJob),
		profiles: make(map[string]domain.ReadingProfile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (m *MemoryStore) CreateJob(_ context.Context, job domain.AdaptationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return ErrJobExists
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the job.
func (m *MemoryStore) GetJob(_ context.Context, id string) (domain.AdaptationJob, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.AdaptationJob{}, false, nil
	}
	return cloneJob(job), true, nil
}

// UpdateJob applies a terminal transition under the write lock.
func (m *MemoryStore) UpdateJob(_ context.Context, id string, update domain.JobUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return ErrJobFinalized
	}
	m.jobs[id] = job.Apply(update, m.now())
	return nil
}

// GetProfile returns the profile of a user.
func (m *MemoryStore) GetProfile(_ context.Context, userID string) (domain.ReadingProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.ReadingProfile{}, false, nil
	}
	p.KnownTopics = append([]string(nil), p.KnownTopics...)
	return p, true, nil
}

// SaveProfile creates or replaces a profile.
func (m *MemoryStore) SaveProfile(_ context.Context, profile domain.ReadingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile.KnownTopics = append([]string(nil), profile.KnownTopics...)
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = m.now()
	}
	m.profiles[profile.UserID] = profile
	return nil
}

func cloneJob(job domain.AdaptationJob) domain.AdaptationJob {
	if job.Analysis != nil {
		report := *job.Analysis
		job.Analysis = &report
	}
	return job
}
