package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"textadapt/internal/util"
)

// Task is one unit of background work referencing a durable job record.
type Task struct {
	JobID     string
	RequestID string
	Attempt   int
}

// Handler processes a task. A returned error schedules a retry.
type Handler func(context.Context, Task) error

// ExhaustedHandler is called once a task has failed on every allowed attempt.
type ExhaustedHandler func(context.Context, Task, error)

// RedisTaskQueue delivers tasks through a Redis stream consumer group.
// Delivery is at-least-once: handlers must be idempotent.
type RedisTaskQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisTaskQueue(cfg RedisQueueConfig) (*RedisTaskQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisTaskQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Close releases the underlying client.
func (q *RedisTaskQueue) Close() error {
	return q.client.Close()
}

// Enqueue appends a task for jobID. The consumer group is created first so
// tasks added before any consumer starts, or after Redis lost the group, are
// not skipped.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("jobId required")
	}
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	return q.add(ctx, q.client, Task{
		JobID:     jobID,
		RequestID: util.RequestIDFromContext(ctx),
		Attempt:   1,
	})
}

// Start launches concurrency consumers that run until ctx is done.
func (q *RedisTaskQueue) Start(ctx context.Context, concurrency int, handler Handler, exhausted ExhaustedHandler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		slog.Warn("queue group create failed", "stream", q.stream, "group", q.group, "err", err)
	}
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler, exhausted)
	}
}

// ensureGroup creates the stream and consumer group if either is missing. The
// group starts at the head of the stream: acknowledged entries are deleted, so
// every remaining entry is a task still owed a delivery.
func (q *RedisTaskQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

// recoverGroup recreates a consumer group lost to a Redis restart or trim.
func (q *RedisTaskQueue) recoverGroup(ctx context.Context, consumer string) {
	slog.Warn("queue consumer group missing; recreating", "stream", q.stream, "group", q.group, "consumer", consumer)
	if err := q.ensureGroup(ctx); err != nil {
		slog.Warn("queue group create failed", "stream", q.stream, "group", q.group, "err", err)
		q.sleep(ctx, q.retryDelay)
	}
}

func (q *RedisTaskQueue) consumeLoop(ctx context.Context, consumer string, handler Handler, exhausted ExhaustedHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := q.claimPending(ctx, consumer)
		if isNoGroup(err) {
			q.recoverGroup(ctx, consumer)
			continue
		}
		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler, exhausted)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if isNoGroup(err) {
			q.recoverGroup(ctx, consumer)
			continue
		}
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				slog.Warn("queue read failed", "stream", q.stream, "consumer", consumer, "err", err)
				q.sleep(ctx, q.retryDelay)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler, exhausted)
			}
		}
	}
}

func (q *RedisTaskQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisTaskQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler, exhausted ExhaustedHandler) {
	task, ok := decodeTask(msg)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	taskCtx := util.ContextWithRequestID(ctx, task.RequestID)
	logger := slog.Default().With("job_id", task.JobID, "request_id", task.RequestID, "attempt", task.Attempt)
	taskCtx = util.ContextWithLogger(taskCtx, logger)

	err := handler(taskCtx, task)
	if err == nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if task.Attempt >= q.maxRetries {
		logger.Error("task retries exhausted", "err", err)
		if exhausted != nil {
			exhausted(taskCtx, task, err)
		}
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger.Warn("task failed, retrying", "err", err)
	if !q.sleep(ctx, q.retryDelay) {
		return
	}
	next := task
	next.Attempt++
	if err := q.requeueAndAck(ctx, msg.ID, next); err != nil {
		logger.Warn("task requeue failed; left pending for reclaim", "err", err)
	}
}

func (q *RedisTaskQueue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (q *RedisTaskQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisTaskQueue) requeueAndAck(ctx context.Context, msgID string, task Task) error {
	pipe := q.client.TxPipeline()
	if err := q.add(ctx, pipe, task); err != nil {
		return err
	}
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisTaskQueue) add(ctx context.Context, c redis.Cmdable, task Task) error {
	cmd := c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":     task.JobID,
			"request_id": task.RequestID,
			"attempt":    strconv.Itoa(task.Attempt),
		},
	})
	if _, isPipe := c.(redis.Pipeliner); isPipe {
		return nil
	}
	return cmd.Err()
}

func decodeTask(msg redis.XMessage) (Task, bool) {
	jobID, _ := msg.Values["job_id"].(string)
	if strings.TrimSpace(jobID) == "" {
		return Task{}, false
	}
	task := Task{JobID: jobID, Attempt: 1}
	task.RequestID, _ = msg.Values["request_id"].(string)
	if raw, _ := msg.Values["attempt"].(string); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			task.Attempt = n
		}
	}
	return task, true
}
