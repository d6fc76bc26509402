package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"textadapt/internal/util"
	"textadapt/pkg/domain"
	"textadapt/pkg/queue"
	"textadapt/pkg/readability"
	"textadapt/pkg/store"
)

const scheduleFailedMessage = "analysis could not be scheduled"

// dispatch schedules analysis of a created job. A scheduling failure is
// recorded on the job so polling still reaches a terminal state.
func (a *App) dispatch(ctx context.Context, jobID string) {
	logger := util.LoggerFromContext(ctx)
	if a.queue != nil {
		if err := a.queue.Enqueue(ctx, jobID); err != nil {
			logger.Error("enqueue analysis failed", "job_id", jobID, "err", err)
			a.MarkFailed(context.WithoutCancel(ctx), jobID, scheduleFailedMessage)
		}
		return
	}
	bg := context.WithoutCancel(ctx)
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("analysis worker panic", "job_id", jobID, "panic", r)
				a.MarkFailed(bg, jobID, "analysis failed")
			}
		}()
		if err := a.Finish(bg, jobID); err != nil {
			logger.Error("inline analysis failed", "job_id", jobID, "err", err)
			a.MarkFailed(bg, jobID, "analysis failed")
		}
	}()
}

// Wait blocks until in-process analyses have finished.
func (a *App) Wait() {
	a.inflight.Wait()
}

// Consume runs queue workers that finish jobs until ctx is done. Tasks that
// exhaust their retries mark the job failed.
func (a *App) Consume(ctx context.Context, q *queue.RedisTaskQueue, concurrency int) {
	q.Start(ctx, concurrency, func(ctx context.Context, task queue.Task) error {
		return a.Finish(ctx, task.JobID)
	}, func(ctx context.Context, task queue.Task, err error) {
		a.MarkFailed(ctx, task.JobID, "analysis failed")
	})
}

// Finish computes the report of a processing job and finalizes it. It is
// safe to call more than once for the same job. The returned error is only
// set for retriable storage failures; analysis defects are recorded on the job.
func (a *App) Finish(ctx context.Context, jobID string) error {
	logger := util.LoggerFromContext(ctx).With("job_id", jobID)
	job, ok, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if !ok {
		logger.Warn("analysis skipped: job no longer exists")
		return nil
	}
	if job.Status.Terminal() {
		logger.Info("analysis skipped: job already finalized", "status", job.Status)
		return nil
	}

	report, err := a.buildReport(ctx, job)
	update := domain.Completed(report)
	if err != nil {
		logger.Error("analysis failed", "err", err)
		update = domain.Failed(PublicMessage(err))
	}
	if err := a.jobs.UpdateJob(ctx, jobID, update); err != nil {
		if errors.Is(err, store.ErrJobFinalized) || errors.Is(err, store.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("finalize job: %w", err)
	}
	logger.Info("adaptation job finalized", "status", update.Status)

	if update.Status == domain.JobCompleted && a.archive != nil {
		if err := a.archive.Save(ctx, job.OwnerID, job.ID, job.Title, report); err != nil {
			logger.Warn("report archive failed", "err", err)
		}
	}
	return nil
}

// MarkFailed finalizes a job as failed unless it is already terminal.
func (a *App) MarkFailed(ctx context.Context, jobID, msg string) {
	err := a.jobs.UpdateJob(ctx, jobID, domain.Failed(msg))
	if err != nil && !errors.Is(err, store.ErrJobFinalized) {
		util.LoggerFromContext(ctx).Error("mark job failed", "job_id", jobID, "err", err)
	}
}

// buildReport analyzes both snapshots concurrently. Panics are converted to
// AnalysisInternal errors.
func (a *App) buildReport(ctx context.Context, job domain.AdaptationJob) (report readability.Report, err error) {
	var original, simplified readability.Metrics
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.safeAnalyze(job.OriginalText)
		original = m
		return err
	})
	g.Go(func() error {
		m, err := a.safeAnalyze(job.SimplifiedText)
		simplified = m
		return err
	})
	if err := g.Wait(); err != nil {
		return readability.Report{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindAnalysisInternal, "analysis failed", fmt.Errorf("panic: %v", r))
		}
	}()
	return readability.CompareMetrics(original, simplified), nil
}

func (a *App) safeAnalyze(text string) (m readability.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindAnalysisInternal, "analysis failed", fmt.Errorf("panic: %v", r))
		}
	}()
	return a.analyze(text), nil
}
