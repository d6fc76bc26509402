package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
)

func newTestRedisJobStore(t *testing.T) (*RedisJobStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	s, err := NewRedisJobStore(RedisJobStoreConfig{Addr: srv.Addr(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("new redis job store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, srv
}

func TestNewRedisJobStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisJobStore(RedisJobStoreConfig{}); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
}

func TestRedisJobStoreCreateGetComplete(t *testing.T) {
	s, srv := newTestRedisJobStore(t)
	ctx := context.Background()
	job := newProcessingJob("job-1")

	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.CreateJob(ctx, job); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
	if ttl := srv.TTL("textadapt:job:job-1"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	got, ok, err := s.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.JobProcessing || got.Analysis != nil || got.Error != "" {
		t.Fatalf("unexpected processing job: %+v", got)
	}
	if got.OwnerID != "user-1" || got.OriginalText != job.OriginalText || !got.CreatedAt.Equal(job.CreatedAt) {
		t.Fatalf("decoded job mismatch: %+v", got)
	}

	report := readability.Compare(job.OriginalText, job.SimplifiedText)
	if err := s.UpdateJob(ctx, job.ID, domain.Completed(report)); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, _, err = s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobCompleted || got.Analysis == nil || got.Error != "" {
		t.Fatalf("unexpected completed job: %+v", got)
	}
	if got.Analysis.Original != report.Original || got.Analysis.Summary != report.Summary {
		t.Fatalf("analysis mismatch: %+v", got.Analysis)
	}
	if got.SimplifiedText != job.SimplifiedText {
		t.Fatalf("partial update must keep snapshots")
	}
}

func TestRedisJobStoreGetMissing(t *testing.T) {
	s, _ := newTestRedisJobStore(t)
	if _, ok, err := s.GetJob(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("expected not found, ok=%v err=%v", ok, err)
	}
	if err := s.UpdateJob(context.Background(), "nope", domain.Failed("x")); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRedisJobStoreRejectsSecondTransition(t *testing.T) {
	s, _ := newTestRedisJobStore(t)
	ctx := context.Background()
	job := newProcessingJob("job-2")
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateJob(ctx, job.ID, domain.Failed("analysis panicked")); err != nil {
		t.Fatalf("fail job: %v", err)
	}
	err := s.UpdateJob(ctx, job.ID, domain.Completed(readability.Compare("가", "가")))
	if !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	got, _, _ := s.GetJob(ctx, job.ID)
	if got.Status != domain.JobFailed || got.Analysis != nil || got.Error != "analysis panicked" {
		t.Fatalf("failed job must stay failed without analysis: %+v", got)
	}
}

func TestRedisJobStoreConcurrentUpdatesFinalizeOnce(t *testing.T) {
	s, _ := newTestRedisJobStore(t)
	ctx := context.Background()
	job := newProcessingJob("job-3")
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateJob(ctx, job.ID, domain.Failed("worker"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrJobFinalized) {
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", succeeded)
	}
}

func TestRedisJobStoreRejectsInvalidUpdate(t *testing.T) {
	s, _ := newTestRedisJobStore(t)
	ctx := context.Background()
	job := newProcessingJob("job-4")
	_ = s.CreateJob(ctx, job)
	if err := s.UpdateJob(ctx, job.ID, domain.JobUpdate{Status: domain.JobCompleted}); err == nil {
		t.Fatalf("expected completed update without analysis to be rejected")
	}
}
