package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
)

func newSQLiteGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "textadapt.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&JobModel{}, &ProfileModel{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewGormStoreWithDB(db)
}

func TestGormStoreJobLifecycle(t *testing.T) {
	s := newSQLiteGormStore(t)
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
	if got.Analysis.Summary != report.Summary || got.Analysis.Original.SentenceCount != report.Original.SentenceCount {
		t.Fatalf("analysis not round-tripped: %+v", got.Analysis)
	}
	if got.OriginalText != job.OriginalText || got.SimplifiedText != job.SimplifiedText || got.OwnerID != job.OwnerID {
		t.Fatalf("partial update must keep other fields: %+v", got)
	}

	if err := s.UpdateJob(ctx, job.ID, domain.Failed("late")); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("expected ErrJobFinalized, got %v", err)
	}
	got, _, _ = s.GetJob(ctx, job.ID)
	if got.Status != domain.JobCompleted || got.Error != "" {
		t.Fatalf("finalized job was rewritten: %+v", got)
	}
	if err := s.UpdateJob(ctx, "missing", domain.Failed("x")); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, err := s.GetJob(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing job: ok=%v err=%v", ok, err)
	}
}

func TestGormStoreFailedJobHasNoAnalysis(t *testing.T) {
	s := newSQLiteGormStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newProcessingJob("job-2")); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateJob(ctx, "job-2", domain.Failed("analysis failed")); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, _, err := s.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobFailed || got.Error != "analysis failed" || got.Analysis != nil {
		t.Fatalf("unexpected failed job: %+v", got)
	}
}

func TestGormStoreRejectsNonTerminalUpdate(t *testing.T) {
	s := newSQLiteGormStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newProcessingJob("job-3")); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateJob(ctx, "job-3", domain.JobUpdate{Status: domain.JobProcessing}); err == nil {
		t.Fatalf("expected non-terminal update to be rejected")
	}
	got, _, _ := s.GetJob(ctx, "job-3")
	if got.Status != domain.JobProcessing {
		t.Fatalf("job changed by rejected update: %+v", got)
	}
}

func TestGormStoreConcurrentFinalizationAppliesOnce(t *testing.T) {
	s := newSQLiteGormStore(t)
	ctx := context.Background()
	job := newProcessingJob("job-4")
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	report := readability.Compare(job.OriginalText, job.SimplifiedText)
	updates := []domain.JobUpdate{domain.Completed(report), domain.Failed("analysis failed")}
	errs := make([]error, len(updates))
	var wg sync.WaitGroup
	for i, u := range updates {
		wg.Add(1)
		go func(i int, u domain.JobUpdate) {
			defer wg.Done()
			errs[i] = s.UpdateJob(ctx, job.ID, u)
		}(i, u)
	}
	wg.Wait()

	applied, finalized := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrJobFinalized):
			finalized++
		default:
			t.Fatalf("unexpected update error: %v", err)
		}
	}
	if applied != 1 || finalized != 1 {
		t.Fatalf("expected one applied and one finalized update, got %v", errs)
	}
	got, _, _ := s.GetJob(ctx, job.ID)
	if (got.Analysis != nil) == (got.Error != "") {
		t.Fatalf("terminal job must carry exactly one of analysis or error: %+v", got)
	}
}

func TestGormStoreProfileUpsert(t *testing.T) {
	s := newSQLiteGormStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetProfile(ctx, "user-1"); ok || err != nil {
		t.Fatalf("expected no profile, got ok=%v err=%v", ok, err)
	}
	first, err := domain.NewReadingProfile("user-1", 1, 2, []string{"경제"})
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	if err := s.SaveProfile(ctx, first); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	second, err := domain.NewReadingProfile("user-1", 2, 0, nil)
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	if err := s.SaveProfile(ctx, second); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	got, ok, err := s.GetProfile(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("get profile: ok=%v err=%v", ok, err)
	}
	if got.Sentence != domain.SentenceAggressive || got.Vocabulary != domain.VocabularyNone || len(got.KnownTopics) != 0 {
		t.Fatalf("profile not replaced: %+v", got)
	}
}

func TestProfileFromModelRejectsOutOfRangeLevels(t *testing.T) {
	_, err := profileFromModel(ProfileModel{UserID: "u-1", Sentence: 5, Vocabulary: 1})
	if err == nil {
		t.Fatalf("expected stored sentence level 5 to be rejected")
	}
}

func TestProfileFromModelDecodesTopics(t *testing.T) {
	p, err := profileFromModel(ProfileModel{
		UserID:      "u-1",
		Sentence:    2,
		Vocabulary:  0,
		KnownTopics: datatypes.JSON(`["경제"," 경제 ","의학"]`),
	})
	if err != nil {
		t.Fatalf("profileFromModel: %v", err)
	}
	if len(p.KnownTopics) != 2 || p.KnownTopics[1] != "의학" {
		t.Fatalf("unexpected topics: %q", p.KnownTopics)
	}
}

func TestJobFromModelIgnoresNullAnalysis(t *testing.T) {
	job, err := jobFromModel(JobModel{ID: "j-1", Status: "processing", Analysis: datatypes.JSON("null")})
	if err != nil {
		t.Fatalf("jobFromModel: %v", err)
	}
	if job.Analysis != nil {
		t.Fatalf("expected nil analysis for null column")
	}
}
