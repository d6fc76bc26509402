package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"textadapt/pkg/readability"
)

// ArchivedReport is the document written for each completed job.
type ArchivedReport struct {
	JobID      string             `json:"jobId"`
	OwnerID    string             `json:"ownerId"`
	Title      string             `json:"title,omitempty"`
	Analysis   readability.Report `json:"analysis"`
	ArchivedAt time.Time          `json:"archivedAt"`
}

// ReportArchive writes finalized reports to object storage.
type ReportArchive struct {
	store ObjectStore
	now   func() time.Time
}

func NewReportArchive(store ObjectStore) *ReportArchive {
	return &ReportArchive{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ReportKey is the object key of a job's archived report.
func ReportKey(ownerID, jobID string) string {
	return fmt.Sprintf("reports/%s/%s.json", ownerID, jobID)
}

// Save uploads the report of a completed job.
func (a *ReportArchive) Save(ctx context.Context, ownerID, jobID, title string, report readability.Report) error {
	if ownerID == "" || jobID == "" {
		return errors.New("archive requires owner and job id")
	}
	body, err := json.Marshal(ArchivedReport{
		JobID:      jobID,
		OwnerID:    ownerID,
		Title:      title,
		Analysis:   report,
		ArchivedAt: a.now(),
	})
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return a.store.Put(ctx, ReportKey(ownerID, jobID), bytes.NewReader(body), int64(len(body)), "application/json")
}
