package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"textadapt/internal/ratelimit"
	"textadapt/pkg/domain"
	"textadapt/pkg/queue"
	"textadapt/pkg/readability"
	"textadapt/pkg/store"
)

type fakeRewriter struct {
	calls atomic.Int32
	fn    func([]domain.Paragraph) ([]domain.Paragraph, error)
}

func (f *fakeRewriter) Rewrite(_ context.Context, paragraphs []domain.Paragraph, _ Guidelines) ([]domain.Paragraph, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(paragraphs)
	}
	out := make([]domain.Paragraph, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = domain.Paragraph{ID: p.ID, Text: "짧다."}
	}
	return out, nil
}

type countingStore struct {
	*store.MemoryStore
	creates atomic.Int32
}

func (s *countingStore) CreateJob(ctx context.Context, job domain.AdaptationJob) error {
	s.creates.Add(1)
	return s.MemoryStore.CreateJob(ctx, job)
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string) error { return errors.New("redis down") }

type recordingArchive struct {
	mu    sync.Mutex
	saved []string
}

func (r *recordingArchive) Save(_ context.Context, ownerID, jobID, _ string, _ readability.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, ownerID+"/"+jobID)
	return nil
}

var alice = domain.Identity{UID: "alice", Email: "alice@example.com"}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *countingStore, *fakeRewriter) {
	t.Helper()
	mem := &countingStore{MemoryStore: store.NewMemoryStore()}
	rw := &fakeRewriter{}
	cfg := Config{Jobs: mem, Profiles: mem, Rewriter: rw}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	saveProfile(t, mem.MemoryStore, alice.UID, 1, 2)
	return a, mem, rw
}

func saveProfile(t *testing.T, s store.ProfileStore, uid string, sentence, vocabulary int) {
	t.Helper()
	p, err := domain.NewReadingProfile(uid, sentence, vocabulary, nil)
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	if err := s.SaveProfile(context.Background(), p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
}

func sampleRequest() SubmitRequest {
	return SubmitRequest{
		Title: "  제목  ",
		Paragraphs: []domain.Paragraph{
			{ID: 1, Text: "이것은 긴 문장입니다. 짧다."},
			{ID: 2, Text: "두 번째 문단입니다."},
		},
	}
}

func TestSubmitCreatesProcessingJobAndCompletesInline(t *testing.T) {
	a, mem, _ := newTestApp(t, nil)
	ctx := context.Background()

	res, err := a.Submit(ctx, alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.JobID == "" || res.Title != "제목" || len(res.Paragraphs) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Paragraphs[0].ID != 1 || res.Paragraphs[1].ID != 2 {
		t.Fatalf("paragraph order not preserved: %+v", res.Paragraphs)
	}

	a.Wait()
	job, ok, err := mem.GetJob(ctx, res.JobID)
	if err != nil || !ok {
		t.Fatalf("job missing after submit: ok=%v err=%v", ok, err)
	}
	if job.Status != domain.JobCompleted || job.Analysis == nil || job.Error != "" {
		t.Fatalf("expected completed job with analysis, got %+v", job)
	}
	if job.OriginalText != "이것은 긴 문장입니다. 짧다.\n\n두 번째 문단입니다." {
		t.Fatalf("unexpected original snapshot %q", job.OriginalText)
	}
	if job.Analysis.Original.SentenceCount != 3 {
		t.Fatalf("original sentence count = %d, want 3", job.Analysis.Original.SentenceCount)
	}
}

func TestSubmitJobIsReadableBeforeAnalysisFinishes(t *testing.T) {
	release := make(chan struct{})
	a, _, _ := newTestApp(t, nil)
	a.analyze = func(s string) readability.Metrics {
		<-release
		return readability.Analyze(s)
	}

	res, err := a.Submit(context.Background(), alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job, err := a.Report(context.Background(), alice, res.JobID)
	if err != nil {
		t.Fatalf("report right after submit: %v", err)
	}
	if job.Status != domain.JobProcessing || job.Analysis != nil || job.Error != "" {
		t.Fatalf("expected bare processing job, got %+v", job)
	}
	close(release)
	a.Wait()
}

func TestSubmitRejectsProfileWithoutGuideline(t *testing.T) {
	a, mem, rw := newTestApp(t, nil)
	saveProfile(t, mem.MemoryStore, "bob", 0, 0)

	_, err := a.Submit(context.Background(), domain.Identity{UID: "bob"}, sampleRequest())
	if KindOf(err) != KindRejected {
		t.Fatalf("expected rejected, got %v", err)
	}
	if rw.calls.Load() != 0 {
		t.Fatalf("oracle must not be called for rejected profiles")
	}
	if mem.creates.Load() != 0 {
		t.Fatalf("no job may be created for rejected profiles")
	}
}

func TestSubmitProfileNotFound(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	_, err := a.Submit(context.Background(), domain.Identity{UID: "nobody"}, sampleRequest())
	if KindOf(err) != KindProfileNotFound {
		t.Fatalf("expected profile not found, got %v", err)
	}
}

func TestSubmitOracleFailureCreatesNoJob(t *testing.T) {
	for _, kind := range []Kind{KindOracleUnavailable, KindOracleMalformedResponse} {
		t.Run(kind.String(), func(t *testing.T) {
			a, mem, rw := newTestApp(t, nil)
			rw.fn = func([]domain.Paragraph) ([]domain.Paragraph, error) {
				return nil, newError(kind, "oracle", errors.New("boom"))
			}
			_, err := a.Submit(context.Background(), alice, sampleRequest())
			if KindOf(err) != kind {
				t.Fatalf("expected %s, got %v", kind, err)
			}
			if mem.creates.Load() != 0 {
				t.Fatalf("no job may be created on oracle failure")
			}
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	a, _, rw := newTestApp(t, func(c *Config) {
		c.MaxParagraphs = 2
		c.MaxParagraphRunes = 10
	})
	tests := []struct {
		name       string
		paragraphs []domain.Paragraph
	}{
		{"empty", nil},
		{"too many", []domain.Paragraph{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}},
		{"negative id", []domain.Paragraph{{ID: -1, Text: "a"}}},
		{"duplicate id", []domain.Paragraph{{ID: 1, Text: "a"}, {ID: 1, Text: "b"}}},
		{"blank text", []domain.Paragraph{{ID: 1, Text: "   "}}},
		{"too long", []domain.Paragraph{{ID: 1, Text: strings.Repeat("가", 11)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Submit(context.Background(), alice, SubmitRequest{Paragraphs: tt.paragraphs})
			if KindOf(err) != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if rw.calls.Load() != 0 {
		t.Fatalf("oracle must not be called for invalid requests")
	}
}

func TestSubmitRateLimited(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:submit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	a, _, rw := newTestApp(t, func(c *Config) { c.Limiter = limiter })

	if _, err := a.Submit(context.Background(), alice, sampleRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = a.Submit(context.Background(), alice, sampleRequest())
	if KindOf(err) != KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if rw.calls.Load() != 1 {
		t.Fatalf("oracle called %d times, want 1", rw.calls.Load())
	}
	a.Wait()
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	a, mem, _ := newTestApp(t, func(c *Config) { c.Queue = failingQueue{} })

	res, err := a.Submit(context.Background(), alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit should still succeed: %v", err)
	}
	job, ok, _ := mem.GetJob(context.Background(), res.JobID)
	if !ok || job.Status != domain.JobFailed || job.Error != scheduleFailedMessage {
		t.Fatalf("expected failed job, got %+v", job)
	}
}

func TestFinishRecoversAnalysisPanic(t *testing.T) {
	a, mem, _ := newTestApp(t, nil)
	a.analyze = func(string) readability.Metrics { panic("defect") }

	res, err := a.Submit(context.Background(), alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	a.Wait()
	job, _, _ := mem.GetJob(context.Background(), res.JobID)
	if job.Status != domain.JobFailed || job.Analysis != nil || job.Error == "" {
		t.Fatalf("expected failed job without analysis, got %+v", job)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	archive := &recordingArchive{}
	a, mem, _ := newTestApp(t, func(c *Config) { c.Archive = archive })

	res, err := a.Submit(context.Background(), alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	a.Wait()
	before, _, _ := mem.GetJob(context.Background(), res.JobID)

	if err := a.Finish(context.Background(), res.JobID); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	after, _, _ := mem.GetJob(context.Background(), res.JobID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != domain.JobCompleted {
		t.Fatalf("finalized job was rewritten: before=%+v after=%+v", before, after)
	}
	if len(archive.saved) != 1 || archive.saved[0] != "alice/"+res.JobID {
		t.Fatalf("unexpected archive writes: %v", archive.saved)
	}
}

func TestFinishUnknownJobIsNoop(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	if err := a.Finish(context.Background(), "missing"); err != nil {
		t.Fatalf("finish unknown job: %v", err)
	}
}

func TestReportAccessControl(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	res, err := a.Submit(context.Background(), alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	a.Wait()

	if _, err := a.Report(context.Background(), domain.Identity{UID: "mallory"}, res.JobID); KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := a.Report(context.Background(), alice, "does-not-exist"); KindOf(err) != KindJobNotFound {
		t.Fatalf("expected job not found, got %v", err)
	}
	if _, err := a.Report(context.Background(), alice, " "); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateProfileValidatesLevels(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	if _, err := a.UpdateProfile(context.Background(), "carol", ProfileUpdate{Sentence: 3}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	p, err := a.UpdateProfile(context.Background(), "carol", ProfileUpdate{Sentence: 2, Vocabulary: 3, KnownTopics: []string{" 경제 ", "경제"}})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if len(p.KnownTopics) != 1 || p.KnownTopics[0] != "경제" {
		t.Fatalf("topics not normalized: %v", p.KnownTopics)
	}
	got, err := a.Profile(context.Background(), "carol")
	if err != nil || got.Sentence != domain.SentenceAggressive || got.Vocabulary != domain.VocabularyAggressive {
		t.Fatalf("unexpected stored profile: %+v err=%v", got, err)
	}
}

func TestConsumeFinishesQueuedJobs(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := queue.NewRedisTaskQueue(queue.RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:analysis",
		Group:      "workers",
		Block:      20 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Close()

	jobs, err := store.NewRedisJobStore(store.RedisJobStoreConfig{Addr: redisSrv.Addr()})
	if err != nil {
		t.Fatalf("new job store: %v", err)
	}
	defer jobs.Close()

	profiles := store.NewMemoryStore()
	saveProfile(t, profiles, alice.UID, 2, 0)
	a, err := New(Config{Jobs: jobs, Profiles: profiles, Rewriter: &fakeRewriter{}, Queue: q})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := a.Submit(ctx, alice, sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	a.Consume(ctx, q, 1)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := a.Report(ctx, alice, res.JobID)
		if err != nil {
			t.Fatalf("report: %v", err)
		}
		if job.Status == domain.JobCompleted {
			if job.Analysis == nil {
				t.Fatalf("completed job without analysis")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queued job was not finalized")
}
