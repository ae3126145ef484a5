package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationArchive is the DB row written when the in-memory store evicts a
// notification past the retention cap.
type NotificationArchive struct {
	ID             string         `gorm:"primaryKey;type:text"`
	Type           string         `gorm:"type:text;not null;index"`
	Priority       string         `gorm:"type:text;not null"`
	Source         string         `gorm:"type:text;not null;index"`
	Symbol         *string        `gorm:"type:text;index"`
	Title          string         `gorm:"type:text;not null"`
	Message        string         `gorm:"type:text;not null"`
	Summarized     *string        `gorm:"type:text"`
	DedupKey       string         `gorm:"type:text;not null;uniqueIndex"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	Read           bool           `gorm:"not null"`
	Responded      bool           `gorm:"not null"`
	ResponseAction *string        `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"type:timestamptz;not null;index"`
	ArchivedAt     time.Time      `gorm:"type:timestamptz;not null"`
}

func (NotificationArchive) TableName() string { return "notification_archive" }
