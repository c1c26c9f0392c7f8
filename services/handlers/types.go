package handlers

import (
	"time"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
)

type AuthServiceInterface interface {
	Register(req *dto.RegisterRequest, clientIP, userAgent string) (*dto.RegisterResponse, error)
	Login(req *dto.LoginRequest, clientIP, userAgent string) (*dto.LoginResponse, error)
	Logout(userID, sessionID, clientIP, userAgent string) error
}

type UserServiceInterface interface {
	GetUser(userID string) (*dto.UserResponse, error)
	UpdateUser(userID string, req *dto.UpdateUserRequest) (*dto.UserResponse, error)
	DeleteUser(userID, reason, clientIP, userAgent string) (*model.DataDeletionRequest, error)
	ListUsers(page, limit int, search string) (*dto.UserListResponse, error)
	ExportUserData(userID, clientIP, userAgent string) (*dto.DataExportResponse, error)
}

type AuditServiceInterface interface {
	History(req *dto.AuditHistoryRequest) (*dto.AuditHistoryResponse, error)
	Summarize(start, end time.Time) (*dto.AuditSummaryResponse, error)
}

type IncidentServiceInterface interface {
	CreateIncident(req *dto.CreateIncidentRequest) (*model.SecurityIncident, error)
	UpdateStatus(incidentID string, req *dto.UpdateIncidentStatusRequest, resolverUserID string) (*model.SecurityIncident, error)
	GetIncident(incidentID string) (*model.SecurityIncident, error)
	ListIncidents(limit int) ([]model.SecurityIncident, error)
	Summary(start, end *time.Time) (*dto.IncidentSummaryResponse, error)
}

type LifecycleServiceInterface interface {
	GetDeletionRequest(requestID string) (*model.DataDeletionRequest, error)
	ListDeletionRequests(status model.DeletionStatus, limit int) ([]model.DataDeletionRequest, error)
	ProcessDeletionRequest(requestID string, level model.AnonymizationLevel, operatorUserID string) (*model.DataDeletionRequest, error)
	RunRetentionSweep() (*dto.RetentionSweepResult, error)
}
