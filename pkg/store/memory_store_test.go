package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
)

func newProcessingJob(id string) domain.AdaptationJob {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.AdaptationJob{
		ID:             id,
		OwnerID:        "user-1",
		Title:          "기사",
		Status:         domain.JobProcessing,
		OriginalText:   "원래 문장입니다.",
		SimplifiedText: "쉬운 문장입니다.",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryStoreJobLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob("job-1")

	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.CreateJob(ctx, job); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}

	report := readability.Compare(job.OriginalText, job.SimplifiedText)
	if err := s.UpdateJob(ctx, job.ID, domain.Completed(report)); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, ok, err := s.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.JobCompleted || got.Analysis == nil || got.Error != "" {
		t.Fatalf("unexpected job after completion: %+v", got)
	}
	if got.OriginalText != job.OriginalText || got.Title != job.Title {
		t.Fatalf("partial update must keep other fields: %+v", got)
	}

	if err := s.UpdateJob(ctx, job.ID, domain.Failed("late")); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	if err := s.UpdateJob(ctx, "missing", domain.Failed("x")); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStoreGetJobReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob("job-2")
	_ = s.CreateJob(ctx, job)
	_ = s.UpdateJob(ctx, job.ID, domain.Completed(readability.Compare("가", "가")))

	first, _, _ := s.GetJob(ctx, job.ID)
	first.Analysis.Summary = "mutated"
	second, _, _ := s.GetJob(ctx, job.ID)
	if second.Analysis.Summary == "mutated" {
		t.Fatalf("GetJob must not expose internal state")
	}
}

func TestMemoryStoreProfiles(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, ok, err := s.GetProfile(ctx, "user-1"); ok || err != nil {
		t.Fatalf("expected missing profile, ok=%v err=%v", ok, err)
	}
	profile, err := domain.NewReadingProfile("user-1", 1, 2, []string{"경제"})
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	if err := s.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	got, ok, err := s.GetProfile(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("get profile: ok=%v err=%v", ok, err)
	}
	if got.Sentence != domain.SentenceModerate || got.Vocabulary != domain.VocabularyModerate || len(got.KnownTopics) != 1 {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("expected updatedAt to be set")
	}
}
