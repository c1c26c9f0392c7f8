package dto

import (
	"time"

	"github.com/datashield-labs/warden_api/model"
)

type AuditHistoryRequest struct {
	TargetUserID string     `json:"target_user_id"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Limit        int        `json:"limit"`
}

type AuditHistoryResponse struct {
	Entries []model.AuditLog `json:"entries"`
	Count   int              `json:"count"`
}

type AuditSummaryPeriod struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type AuditSummaryResponse struct {
	Period     AuditSummaryPeriod `json:"period"`
	TotalCount int64              `json:"total_access_count"`
	ByAction   map[string]int64   `json:"action_statistics"`
	ByCategory map[string]int64   `json:"category_statistics"`
	ByDay      map[string]int64   `json:"daily_statistics"`
}
