package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type JobModel struct {
	ID             string         `gorm:"primaryKey"`
	OwnerID        string         `gorm:"not null;index"`
	Title          string
	Status         string         `gorm:"not null;index"`
	OriginalText   string         `gorm:"type:text;not null"`
	SimplifiedText string         `gorm:"type:text;not null"`
	Analysis       datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage   string
	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type ProfileModel struct {
	UserID      string         `gorm:"primaryKey"`
	Sentence    int            `gorm:"not null"`
	Vocabulary  int            `gorm:"not null"`
	KnownTopics datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt   time.Time      `gorm:"not null"`
}
