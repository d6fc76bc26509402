package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
)

const migrateLockID int64 = 51205120

// GormStore implements JobStore and ProfileStore using GORM + Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&JobModel{}, &ProfileModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return NewGormStoreWithDB(db), nil
}

// NewGormStoreWithDB wraps an already opened and migrated connection.
func NewGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateJob inserts a job row.
func (s *GormStore) CreateJob(ctx context.Context, job domain.AdaptationJob) error {
	model, err := jobToModel(job)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobExists
	}
	return nil
}

// GetJob returns a job by ID.
func (s *GormStore) GetJob(ctx context.Context, id string) (domain.AdaptationJob, bool, error) {
	var model JobModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AdaptationJob{}, false, nil
		}
		return domain.AdaptationJob{}, false, err
	}
	job, err := jobFromModel(model)
	if err != nil {
		return domain.AdaptationJob{}, false, err
	}
	return job, true, nil
}

// UpdateJob applies a terminal transition guarded by status = processing.
func (s *GormStore) UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	updates := map[string]any{
		"status":     string(update.Status),
		"updated_at": s.now(),
	}
	if update.Analysis != nil {
		raw, err := json.Marshal(update.Analysis)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		updates["analysis"] = datatypes.JSON(raw)
	}
	if update.Error != "" {
		updates["error_message"] = update.Error
	}
	res := s.db.WithContext(ctx).Model(&JobModel{}).
		Where("id = ? AND status = ?", id, string(domain.JobProcessing)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrJobNotFound
	}
	return ErrJobFinalized
}

// GetProfile returns the profile of a user.
func (s *GormStore) GetProfile(ctx context.Context, userID string) (domain.ReadingProfile, bool, error) {
	var model ProfileModel
	if err := s.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingProfile{}, false, nil
		}
		return domain.ReadingProfile{}, false, err
	}
	profile, err := profileFromModel(model)
	if err != nil {
		return domain.ReadingProfile{}, false, err
	}
	return profile, true, nil
}

// SaveProfile upserts a profile.
func (s *GormStore) SaveProfile(ctx context.Context, profile domain.ReadingProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = s.now()
	}
	model, err := profileToModel(profile)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sentence", "vocabulary", "known_topics", "updated_at"}),
	}).Create(&model).Error
}

func jobToModel(job domain.AdaptationJob) (JobModel, error) {
	model := JobModel{
		ID:             job.ID,
		OwnerID:        job.OwnerID,
		Title:          job.Title,
		Status:         string(job.Status),
		OriginalText:   job.OriginalText,
		SimplifiedText: job.SimplifiedText,
		ErrorMessage:   job.Error,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.Analysis != nil {
		raw, err := json.Marshal(job.Analysis)
		if err != nil {
			return JobModel{}, fmt.Errorf("encode analysis: %w", err)
		}
		model.Analysis = datatypes.JSON(raw)
	}
	return model, nil
}

func jobFromModel(model JobModel) (domain.AdaptationJob, error) {
	job := domain.AdaptationJob{
		ID:             model.ID,
		OwnerID:        model.OwnerID,
		Title:          model.Title,
		Status:         domain.JobStatus(model.Status),
		OriginalText:   model.OriginalText,
		SimplifiedText: model.SimplifiedText,
		Error:          model.ErrorMessage,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
	if len(model.Analysis) > 0 && string(model.Analysis) != "null" {
		var report readability.Report
		if err := json.Unmarshal(model.Analysis, &report); err != nil {
			return domain.AdaptationJob{}, fmt.Errorf("decode analysis of job %s: %w", model.ID, err)
		}
		job.Analysis = &report
	}
	return job, nil
}

func profileToModel(profile domain.ReadingProfile) (ProfileModel, error) {
	topics := profile.KnownTopics
	if topics == nil {
		topics = []string{}
	}
	raw, err := json.Marshal(topics)
	if err != nil {
		return ProfileModel{}, fmt.Errorf("encode known topics: %w", err)
	}
	return ProfileModel{
		UserID:      profile.UserID,
		Sentence:    int(profile.Sentence),
		Vocabulary:  int(profile.Vocabulary),
		KnownTopics: datatypes.JSON(raw),
		UpdatedAt:   profile.UpdatedAt,
	}, nil
}

// profileFromModel re-validates stored levels so out-of-range rows never reach guideline construction.
func profileFromModel(model ProfileModel) (domain.ReadingProfile, error) {
	var topics []string
	if len(model.KnownTopics) > 0 {
		if err := json.Unmarshal(model.KnownTopics, &topics); err != nil {
			return domain.ReadingProfile{}, fmt.Errorf("decode known topics of %s: %w", model.UserID, err)
		}
	}
	profile, err := domain.NewReadingProfile(model.UserID, model.Sentence, model.Vocabulary, topics)
	if err != nil {
		return domain.ReadingProfile{}, fmt.Errorf("stored profile of %s: %w", model.UserID, err)
	}
	profile.UpdatedAt = model.UpdatedAt
	return profile, nil
}
