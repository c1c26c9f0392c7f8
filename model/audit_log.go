package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	ActionCreate       AuditAction = "create"
	ActionRead         AuditAction = "read"
	ActionUpdate       AuditAction = "update"
	ActionDelete       AuditAction = "delete"
	ActionExport       AuditAction = "export"
	ActionLogin        AuditAction = "login"
	ActionLogout       AuditAction = "logout"
	ActionAccessDenied AuditAction = "access_denied"
)

type DataCategory string

const (
	CategoryPersonalInfo DataCategory = "personal_info"
	CategoryProfileData  DataCategory = "profile_data"
	CategoryAuthData     DataCategory = "auth_data"
	CategorySystemData   DataCategory = "system_data"
)

// AuditLog rows are append-only; nothing in the service layer updates or
// deletes them inside their retention horizon.
type AuditLog struct {
	ID           string          `json:"id" gorm:"primaryKey;type:text;not null"`
	ActorUserID  *string         `json:"actor_user_id,omitempty" gorm:"index;size:64"`
	Action       AuditAction     `json:"action" gorm:"not null;index;size:32"`
	DataCategory DataCategory    `json:"data_category" gorm:"not null;index;size:32"`
	TargetUserID *string         `json:"target_user_id,omitempty" gorm:"index;size:64"`
	Details      json.RawMessage `json:"details,omitempty" gorm:"type:jsonb"`
	IPAddress    *string         `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent    *string         `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;index"`
}
