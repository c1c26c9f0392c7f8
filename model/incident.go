package model

import (
	"encoding/json"
	"time"
)

type IncidentType string

const (
	IncidentDataBreach         IncidentType = "data_breach"
	IncidentUnauthorizedAccess IncidentType = "unauthorized_access"
	IncidentSystemCompromise   IncidentType = "system_compromise"
	IncidentOther              IncidentType = "other"
)

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

type IncidentStatus string

const (
	StatusDetected      IncidentStatus = "detected"
	StatusInvestigating IncidentStatus = "investigating"
	StatusContained     IncidentStatus = "contained"
	StatusResolved      IncidentStatus = "resolved"
)

type SecurityIncident struct {
	ID                      string           `json:"id" gorm:"primaryKey;type:text;not null"`
	IncidentType            IncidentType     `json:"incident_type" gorm:"not null;index;size:32"`
	Severity                IncidentSeverity `json:"severity" gorm:"not null;index;size:16"`
	Title                   string           `json:"title" gorm:"not null;size:255"`
	Description             string           `json:"description" gorm:"type:text"`
	AffectedUsersCount      int              `json:"affected_users_count" gorm:"default:0;not null"`
	AffectedDataTypes       json.RawMessage  `json:"affected_data_types,omitempty" gorm:"type:jsonb"`
	DetectionSource         string           `json:"detection_source" gorm:"size:64"`
	DetectionDate           time.Time        `json:"detection_date" gorm:"not null;index"`
	Status                  IncidentStatus   `json:"status" gorm:"not null;index;size:16"`
	ResponseActions         *string          `json:"response_actions,omitempty" gorm:"type:text"`
	ResolutionDate          *time.Time       `json:"resolution_date,omitempty"`
	ReportedToAuthority     bool             `json:"reported_to_authority" gorm:"default:false;not null"`
	AuthorityReportDeadline *time.Time       `json:"authority_report_deadline,omitempty"`
	CreatedAt               time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt               time.Time        `json:"updated_at" gorm:"not null"`
}
