package domain

import (
	"testing"
	"time"

	"textadapt/pkg/readability"
)

func TestNewReadingProfileRejectsUnknownLevels(t *testing.T) {
	if _, err := NewReadingProfile("u-1", 3, 0, nil); err == nil {
		t.Fatalf("expected sentence level 3 to be rejected")
	}
	if _, err := NewReadingProfile("u-1", 0, 4, nil); err == nil {
		t.Fatalf("expected vocabulary level 4 to be rejected")
	}
	if _, err := NewReadingProfile("u-1", -1, 1, nil); err == nil {
		t.Fatalf("expected negative level to be rejected")
	}
}

func TestReadingProfileHasGuideline(t *testing.T) {
	tests := []struct {
		sentence, vocabulary int
		want                 bool
	}{
		{0, 0, false},
		{1, 0, true},
		{0, 1, true},
		{2, 3, true},
	}
	for _, tc := range tests {
		p, err := NewReadingProfile("u-1", tc.sentence, tc.vocabulary, nil)
		if err != nil {
			t.Fatalf("new profile: %v", err)
		}
		if got := p.HasGuideline(); got != tc.want {
			t.Fatalf("HasGuideline(%d,%d) = %v, want %v", tc.sentence, tc.vocabulary, got, tc.want)
		}
	}
}

func TestNormalizeTopics(t *testing.T) {
	got := NormalizeTopics([]string{" 경제 ", "", "과학", "경제"})
	if len(got) != 2 || got[0] != "경제" || got[1] != "과학" {
		t.Fatalf("NormalizeTopics() = %q", got)
	}
}

func TestJoinParagraphsKeepsOrder(t *testing.T) {
	got := JoinParagraphs([]Paragraph{{ID: 2, Text: "둘"}, {ID: 1, Text: "하나"}})
	if got != "둘\n\n하나" {
		t.Fatalf("JoinParagraphs() = %q", got)
	}
}

func TestJobUpdateValidateEnforcesExclusivity(t *testing.T) {
	report := readability.Compare("가", "가")
	tests := []struct {
		name    string
		update  JobUpdate
		wantErr bool
	}{
		{name: "completed", update: Completed(report)},
		{name: "failed", update: Failed("boom")},
		{name: "failed without message gets default", update: Failed(" ")},
		{name: "both", update: JobUpdate{Status: JobCompleted, Analysis: &report, Error: "x"}, wantErr: true},
		{name: "neither", update: JobUpdate{Status: JobFailed}, wantErr: true},
		{name: "not terminal", update: JobUpdate{Status: JobProcessing}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.update.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAdaptationJobApply(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := AdaptationJob{ID: "j-1", OwnerID: "u-1", Status: JobProcessing, OriginalText: "원문", CreatedAt: created, UpdatedAt: created}
	now := created.Add(time.Second)
	done := job.Apply(Failed("boom"), now)
	if done.Status != JobFailed || done.Error != "boom" || done.Analysis != nil {
		t.Fatalf("unexpected applied job: %+v", done)
	}
	if done.OriginalText != "원문" || !done.CreatedAt.Equal(created) || !done.UpdatedAt.Equal(now) {
		t.Fatalf("apply must leave other fields untouched: %+v", done)
	}
	if job.Status != JobProcessing {
		t.Fatalf("apply must not mutate the receiver")
	}
}
