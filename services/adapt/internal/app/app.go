package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"textadapt/internal/ratelimit"
	"textadapt/internal/util"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
	"textadapt/pkg/store"
)

const (
	defaultMaxParagraphs     = 200
	defaultMaxParagraphRunes = 5000
)

// TaskQueue durably schedules background analysis of a job.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// SubmitLimiter bounds oracle calls per caller.
type SubmitLimiter interface {
	Allow(ctx context.Context, key string) error
}

// ReportArchiver keeps a copy of completed reports outside the job store.
type ReportArchiver interface {
	Save(ctx context.Context, ownerID, jobID, title string, report readability.Report) error
}

// Config holds runtime dependencies for the core application.
type Config struct {
	Jobs     store.JobStore
	Profiles store.ProfileStore
	Rewriter Rewriter
	// Queue selects durable dispatch. When nil, analysis runs in-process.
	Queue             TaskQueue
	Limiter           SubmitLimiter
	Archive           ReportArchiver
	MaxParagraphs     int
	MaxParagraphRunes int
}

// App is the adaptation orchestrator.
type App struct {
	jobs              store.JobStore
	profiles          store.ProfileStore
	rewriter          Rewriter
	queue             TaskQueue
	limiter           SubmitLimiter
	archive           ReportArchiver
	maxParagraphs     int
	maxParagraphRunes int

	now      func() time.Time
	newID    func() string
	analyze  func(string) readability.Metrics
	inflight sync.WaitGroup
}

// New validates dependencies and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("job store required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile store required")
	}
	if cfg.Rewriter == nil {
		return nil, errors.New("rewriter required")
	}
	maxParagraphs := cfg.MaxParagraphs
	if maxParagraphs <= 0 {
		maxParagraphs = defaultMaxParagraphs
	}
	maxParagraphRunes := cfg.MaxParagraphRunes
	if maxParagraphRunes <= 0 {
		maxParagraphRunes = defaultMaxParagraphRunes
	}
	return &App{
		jobs:              cfg.Jobs,
		profiles:          cfg.Profiles,
		rewriter:          cfg.Rewriter,
		queue:             cfg.Queue,
		limiter:           cfg.Limiter,
		archive:           cfg.Archive,
		maxParagraphs:     maxParagraphs,
		maxParagraphRunes: maxParagraphRunes,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
		analyze:           readability.Analyze,
	}, nil
}

// SubmitRequest is an adaptation request body.
type SubmitRequest struct {
	Title      string             `json:"title"`
	Paragraphs []domain.Paragraph `json:"paragraphs"`
}

// SubmitResult is the fast response of a submission.
type SubmitResult struct {
	JobID      string
	Title      string
	Paragraphs []domain.Paragraph
}

// Submit rewrites the paragraphs, persists a processing job and schedules its
// analysis. The job exists before Submit returns.
func (a *App) Submit(ctx context.Context, caller domain.Identity, req SubmitRequest) (SubmitResult, error) {
	logger := util.LoggerFromContext(ctx)
	req, err := a.validateRequest(req)
	if err != nil {
		return SubmitResult{}, err
	}
	profile, err := a.Profile(ctx, caller.UID)
	if err != nil {
		return SubmitResult{}, err
	}
	guidelines, err := BuildGuidelines(profile)
	if err != nil {
		return SubmitResult{}, err
	}
	if a.limiter != nil {
		if err := a.limiter.Allow(ctx, caller.UID); err != nil {
			if !errors.Is(err, ratelimit.ErrLimited) {
				logger.Warn("submit limiter unavailable", "err", err)
			}
			return SubmitResult{}, newError(KindRateLimited, "too many adaptation requests, try again later", err)
		}
	}

	simplified, err := a.rewriter.Rewrite(ctx, req.Paragraphs, guidelines)
	if err != nil {
		logger.Warn("rewrite failed", "kind", KindOf(err).String(), "err", err)
		return SubmitResult{}, err
	}

	now := a.now()
	job := domain.AdaptationJob{
		ID:             a.newID(),
		OwnerID:        caller.UID,
		Title:          req.Title,
		Status:         domain.JobProcessing,
		OriginalText:   domain.JoinParagraphs(req.Paragraphs),
		SimplifiedText: domain.JoinParagraphs(simplified),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.jobs.CreateJob(ctx, job); err != nil {
		return SubmitResult{}, newError(KindInternal, "create job", err)
	}
	logger.Info("adaptation job created", "job_id", job.ID, "paragraphs", len(simplified))

	a.dispatch(ctx, job.ID)

	return SubmitResult{JobID: job.ID, Title: req.Title, Paragraphs: simplified}, nil
}

func (a *App) validateRequest(req SubmitRequest) (SubmitRequest, error) {
	req.Title = strings.TrimSpace(req.Title)
	if len(req.Paragraphs) == 0 {
		return req, newError(KindValidation, "paragraphs required", nil)
	}
	if len(req.Paragraphs) > a.maxParagraphs {
		return req, newError(KindValidation, fmt.Sprintf("at most %d paragraphs allowed", a.maxParagraphs), nil)
	}
	seen := make(map[int]struct{}, len(req.Paragraphs))
	paragraphs := make([]domain.Paragraph, len(req.Paragraphs))
	for i, p := range req.Paragraphs {
		if p.ID < 0 {
			return req, newError(KindValidation, "paragraph id must not be negative", nil)
		}
		if _, dup := seen[p.ID]; dup {
			return req, newError(KindValidation, fmt.Sprintf("duplicate paragraph id %d", p.ID), nil)
		}
		seen[p.ID] = struct{}{}
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return req, newError(KindValidation, fmt.Sprintf("paragraph %d text required", p.ID), nil)
		}
		if n := len([]rune(text)); n > a.maxParagraphRunes {
			return req, newError(KindValidation, fmt.Sprintf("paragraph %d exceeds %d characters", p.ID, a.maxParagraphRunes), nil)
		}
		paragraphs[i] = domain.Paragraph{ID: p.ID, Text: text}
	}
	req.Paragraphs = paragraphs
	return req, nil
}

// Report returns the caller's job. Processing jobs carry neither analysis nor error.
func (a *App) Report(ctx context.Context, caller domain.Identity, jobID string) (domain.AdaptationJob, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.AdaptationJob{}, newError(KindValidation, "jobId required", nil)
	}
	job, ok, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.AdaptationJob{}, newError(KindInternal, "load job", err)
	}
	if !ok {
		return domain.AdaptationJob{}, newError(KindJobNotFound, "job not found", nil)
	}
	if job.OwnerID != caller.UID {
		return domain.AdaptationJob{}, newError(KindForbidden, "forbidden", nil)
	}
	return job, nil
}

// Profile loads the reading profile of uid.
func (a *App) Profile(ctx context.Context, uid string) (domain.ReadingProfile, error) {
	profile, ok, err := a.profiles.GetProfile(ctx, uid)
	if err != nil {
		return domain.ReadingProfile{}, newError(KindInternal, "load profile", err)
	}
	if !ok {
		return domain.ReadingProfile{}, newError(KindProfileNotFound, "reading profile not found", nil)
	}
	return profile, nil
}

// ProfileUpdate is the body of a profile update.
type ProfileUpdate struct {
	Sentence    int      `json:"sentence"`
	Vocabulary  int      `json:"vocabulary"`
	KnownTopics []string `json:"knownTopics"`
}

// UpdateProfile validates and stores the reading profile of uid.
func (a *App) UpdateProfile(ctx context.Context, uid string, in ProfileUpdate) (domain.ReadingProfile, error) {
	profile, err := domain.NewReadingProfile(uid, in.Sentence, in.Vocabulary, in.KnownTopics)
	if err != nil {
		return domain.ReadingProfile{}, newError(KindValidation, err.Error(), nil)
	}
	profile.UpdatedAt = a.now()
	if err := a.profiles.SaveProfile(ctx, profile); err != nil {
		return domain.ReadingProfile{}, newError(KindInternal, "save profile", err)
	}
	return profile, nil
}
