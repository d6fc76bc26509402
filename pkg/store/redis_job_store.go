package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
)

const (
	defaultJobKeyPrefix = "textadapt:job"
	defaultJobTTL       = 7 * 24 * time.Hour
)

// RedisJobStoreConfig configures the Redis-backed job store.
type RedisJobStoreConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
	// TTL is the retention period of a job record, refreshed on update.
	TTL time.Duration
}

// RedisJobStore keeps each job in one hash; TTL is the retention policy.
type RedisJobStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisJobStore constructs a Redis-backed job store.
func NewRedisJobStore(cfg RedisJobStoreConfig) (*RedisJobStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultJobKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &RedisJobStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix: prefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying client.
func (s *RedisJobStore) Close() error {
	return s.client.Close()
}

// CreateJob writes a new job hash. It fails with ErrJobExists on id collision.
func (s *RedisJobStore) CreateJob(ctx context.Context, job domain.AdaptationJob) error {
	key := s.jobKey(job.ID)
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrJobExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, payload)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}, key)
	if err == redis.TxFailedErr {
		return ErrJobExists
	}
	return err
}

// GetJob reads a job hash.
func (s *RedisJobStore) GetJob(ctx context.Context, id string) (domain.AdaptationJob, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.AdaptationJob{}, false, nil
	}
	data, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return domain.AdaptationJob{}, false, err
	}
	if len(data) == 0 {
		return domain.AdaptationJob{}, false, nil
	}
	job, err := decodeJob(id, data)
	if err != nil {
		return domain.AdaptationJob{}, false, err
	}
	return job, true, nil
}

// UpdateJob transitions a processing job to a terminal state in one MULTI/EXEC.
func (s *RedisJobStore) UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	key := s.jobKey(id)
	fields := map[string]any{
		"status":    string(update.Status),
		"updatedAt": s.now().Format(time.RFC3339Nano),
	}
	if update.Analysis != nil {
		raw, err := json.Marshal(update.Analysis)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		fields["analysis"] = string(raw)
	}
	if update.Error != "" {
		fields["error"] = update.Error
	}

	for {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			status, err := tx.HGet(ctx, key, "status").Result()
			if err == redis.Nil {
				return ErrJobNotFound
			}
			if err != nil {
				return err
			}
			if domain.JobStatus(status).Terminal() {
				return ErrJobFinalized
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, fields)
				pipe.Expire(ctx, key, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return err
	}
}

func (s *RedisJobStore) jobKey(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

func encodeJob(job domain.AdaptationJob) (map[string]any, error) {
	payload := map[string]any{
		"id":             job.ID,
		"ownerId":        job.OwnerID,
		"title":          job.Title,
		"status":         string(job.Status),
		"originalText":   job.OriginalText,
		"simplifiedText": job.SimplifiedText,
		"error":          job.Error,
		"createdAt":      job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":      job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.Analysis != nil {
		raw, err := json.Marshal(job.Analysis)
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		payload["analysis"] = string(raw)
	}
	return payload, nil
}

func decodeJob(id string, data map[string]string) (domain.AdaptationJob, error) {
	job := domain.AdaptationJob{
		ID:             id,
		OwnerID:        data["ownerId"],
		Title:          data["title"],
		Status:         domain.JobStatus(data["status"]),
		OriginalText:   data["originalText"],
		SimplifiedText: data["simplifiedText"],
		Error:          data["error"],
	}
	if v := data["analysis"]; v != "" {
		var report readability.Report
		if err := json.Unmarshal([]byte(v), &report); err != nil {
			return domain.AdaptationJob{}, fmt.Errorf("decode analysis of job %s: %w", id, err)
		}
		job.Analysis = &report
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job, nil
}
