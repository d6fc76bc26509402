package domain

import (
	"fmt"
	"strings"
	"time"

	"textadapt/pkg/readability"
)

// SentenceLevel controls how aggressively sentences are split and restructured.
type SentenceLevel int

const (
	SentenceNone SentenceLevel = iota
	SentenceModerate
	SentenceAggressive
)

// VocabularyLevel controls how aggressively vocabulary is substituted or explained.
type VocabularyLevel int

const (
	VocabularyNone VocabularyLevel = iota
	VocabularyBasic
	VocabularyModerate
	VocabularyAggressive
)

// ParseSentenceLevel converts a raw profile value into a SentenceLevel.
func ParseSentenceLevel(v int) (SentenceLevel, error) {
	switch SentenceLevel(v) {
	case SentenceNone, SentenceModerate, SentenceAggressive:
		return SentenceLevel(v), nil
	default:
		return 0, fmt.Errorf("sentence level must be 0-2, got %d", v)
	}
}

// ParseVocabularyLevel converts a raw profile value into a VocabularyLevel.
func ParseVocabularyLevel(v int) (VocabularyLevel, error) {
	switch VocabularyLevel(v) {
	case VocabularyNone, VocabularyBasic, VocabularyModerate, VocabularyAggressive:
		return VocabularyLevel(v), nil
	default:
		return 0, fmt.Errorf("vocabulary level must be 0-3, got %d", v)
	}
}

// ReadingProfile is a user's adaptation configuration.
type ReadingProfile struct {
	UserID      string          `json:"-"`
	Sentence    SentenceLevel   `json:"sentence"`
	Vocabulary  VocabularyLevel `json:"vocabulary"`
	KnownTopics []string        `json:"knownTopics"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewReadingProfile validates raw levels and normalizes topics.
func NewReadingProfile(userID string, sentence, vocabulary int, topics []string) (ReadingProfile, error) {
	s, err := ParseSentenceLevel(sentence)
	if err != nil {
		return ReadingProfile{}, err
	}
	v, err := ParseVocabularyLevel(vocabulary)
	if err != nil {
		return ReadingProfile{}, err
	}
	return ReadingProfile{
		UserID:      userID,
		Sentence:    s,
		Vocabulary:  v,
		KnownTopics: NormalizeTopics(topics),
	}, nil
}

// HasGuideline reports whether the profile requests any adaptation at all.
func (p ReadingProfile) HasGuideline() bool {
	return p.Sentence != SentenceNone || p.Vocabulary != VocabularyNone
}

// NormalizeTopics trims, drops empties and de-duplicates while keeping order.
func NormalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return out
}

// Paragraph is one unit of an article. Order within a document is significant.
type Paragraph struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ParagraphSeparator joins paragraphs into a full-text snapshot.
const ParagraphSeparator = "\n\n"

// JoinParagraphs concatenates paragraph texts in order.
func JoinParagraphs(paragraphs []Paragraph) string {
	texts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, ParagraphSeparator)
}

// JobStatus is the externally visible state of an adaptation job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// AdaptationJob tracks the report computation of one adaptation request.
// A completed job carries Analysis, a failed job carries Error, never both.
type AdaptationJob struct {
	ID             string              `json:"jobId"`
	OwnerID        string              `json:"ownerId"`
	Title          string              `json:"title,omitempty"`
	Status         JobStatus           `json:"status"`
	OriginalText   string              `json:"-"`
	SimplifiedText string              `json:"-"`
	Analysis       *readability.Report `json:"analysis,omitempty"`
	Error          string              `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// JobUpdate carries the fields of a terminal transition. Nil/empty fields are left untouched.
type JobUpdate struct {
	Status   JobStatus
	Analysis *readability.Report
	Error    string
}

// Completed builds the update for a successful analysis.
func Completed(report readability.Report) JobUpdate {
	return JobUpdate{Status: JobCompleted, Analysis: &report}
}

// Failed builds the update for a failed analysis.
func Failed(msg string) JobUpdate {
	if strings.TrimSpace(msg) == "" {
		msg = "analysis failed"
	}
	return JobUpdate{Status: JobFailed, Error: msg}
}

// Validate enforces terminal exclusivity of an update.
func (u JobUpdate) Validate() error {
	switch u.Status {
	case JobCompleted:
		if u.Analysis == nil || u.Error != "" {
			return fmt.Errorf("completed update requires analysis and no error")
		}
	case JobFailed:
		if u.Analysis != nil || u.Error == "" {
			return fmt.Errorf("failed update requires error and no analysis")
		}
	default:
		return fmt.Errorf("update must be terminal, got %q", u.Status)
	}
	return nil
}

// Apply returns job with the update applied.
func (j AdaptationJob) Apply(u JobUpdate, now time.Time) AdaptationJob {
	j.Status = u.Status
	if u.Analysis != nil {
		report := *u.Analysis
		j.Analysis = &report
	}
	if u.Error != "" {
		j.Error = u.Error
	}
	j.UpdatedAt = now
	return j
}

// Identity is the authenticated caller.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
