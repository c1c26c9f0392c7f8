package dto

import (
	"time"

	"github.com/datashield-labs/warden_api/model"
)

type CreateIncidentRequest struct {
	IncidentType       string   `json:"incident_type" validate:"required,oneof=data_breach unauthorized_access system_compromise other"`
	Severity           string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Title              string   `json:"title" validate:"required,max=255"`
	Description        string   `json:"description"`
	AffectedUsersCount int      `json:"affected_users_count" validate:"min=0"`
	AffectedDataTypes  []string `json:"affected_data_types"`
	DetectionSource    string   `json:"detection_source"`
}

type UpdateIncidentStatusRequest struct {
	Status          string  `json:"status" validate:"required,oneof=detected investigating contained resolved"`
	ResponseActions *string `json:"response_actions,omitempty"`
}

type IncidentResponse struct {
	Incident *model.SecurityIncident `json:"incident"`
}

type IncidentListResponse struct {
	Incidents []model.SecurityIncident `json:"incidents"`
	Count     int                      `json:"count"`
}

type IncidentSummaryResponse struct {
	Period                AuditSummaryPeriod `json:"period"`
	TotalIncidents        int64              `json:"total_incidents"`
	OpenIncidents         int64              `json:"open_incidents"`
	CriticalIncidents     int64              `json:"critical_incidents"`
	HighIncidents         int64              `json:"high_incidents"`
	TotalAffectedUsers    int64              `json:"total_affected_users"`
	ByType                map[string]int64   `json:"incident_types"`
	AvgResolutionHours    *float64           `json:"average_resolution_hours,omitempty"`
	PendingAuthorityCount int64              `json:"pending_authority_reports"`
}

type SuspiciousActivity struct {
	Type        string                 `json:"type"`
	Severity    string                 `json:"severity"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details"`
	DetectedAt  time.Time              `json:"detected_at"`
}
