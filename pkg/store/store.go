package store

import (
	"context"
	"errors"

	"textadapt/pkg/domain"
)

var (
	// ErrJobExists indicates a job id collision on create.
	ErrJobExists = errors.New("job already exists")
	// ErrJobNotFound indicates an update targeted an unknown job.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinalized indicates the job already reached a terminal state.
	ErrJobFinalized = errors.New("job already finalized")
)

// JobStore persists adaptation jobs. Updates are atomic per job: concurrent
// readers observe either the pre- or post-update record.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.AdaptationJob) error
	GetJob(ctx context.Context, id string) (domain.AdaptationJob, bool, error)
	// UpdateJob applies a terminal transition to a processing job.
	// It returns ErrJobFinalized when the job is already terminal.
	UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error
}

// ProfileStore persists reading profiles keyed by user id.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.ReadingProfile, bool, error)
	SaveProfile(ctx context.Context, profile domain.ReadingProfile) error
}
