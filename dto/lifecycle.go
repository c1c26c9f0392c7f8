package dto

import (
	"time"

	"github.com/datashield-labs/warden_api/model"
)

type CreateDeletionRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

type DeletionRequestResponse struct {
	Request *model.DataDeletionRequest `json:"request"`
}

type DeletionRequestListResponse struct {
	Requests []model.DataDeletionRequest `json:"requests"`
	Count    int                         `json:"count"`
}

type RetentionSweepResult struct {
	ProcessedUsers  int `json:"processed_users"`
	AnonymizedUsers int `json:"anonymized_users"`
	FailedUsers     int `json:"failed_users"`
	DeletedSessions int `json:"deleted_sessions"`
}

type DataExportResponse struct {
	ObjectKey   string    `json:"object_key"`
	DownloadURL string    `json:"download_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	SizeBytes   int64     `json:"size_bytes"`
}
