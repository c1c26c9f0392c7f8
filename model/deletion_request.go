package model

import "time"

// AnonymizationLevel selects how much of a user's footprint survives a
// deletion or retention pass.
type AnonymizationLevel string

const (
	LevelSoftDelete AnonymizationLevel = "soft_delete"
	LevelAnonymize  AnonymizationLevel = "anonymize"
	LevelHardDelete AnonymizationLevel = "hard_delete"
)

type DeletionStatus string

const (
	DeletionPending    DeletionStatus = "pending"
	DeletionProcessing DeletionStatus = "processing"
	DeletionCompleted  DeletionStatus = "completed"
	DeletionFailed     DeletionStatus = "failed"
)

// DataDeletionRequest tracks a right-to-erasure request. The lifecycle is
// monotonic: pending -> processing -> completed|failed, never reopened.
type DataDeletionRequest struct {
	ID          string         `json:"id" gorm:"primaryKey;type:text;not null"`
	UserID      string         `json:"user_id" gorm:"not null;index;size:64"`
	Reason      string         `json:"reason" gorm:"type:text"`
	Status      DeletionStatus `json:"status" gorm:"not null;index;size:16"`
	RequestedAt time.Time      `json:"requested_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}
