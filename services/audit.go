package services

import (
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
)

// AuditService is the append-only record of every data-affecting
// decision. Record is best effort by policy: an audit write failure is a
// compliance gap surfaced to monitoring, never a reason to abort the
// request it is logging.
type AuditService struct {
	appContext.DefaultService

	pgSvc *PostgresService
}

const AUDIT_SVC = "audit_svc"

func (svc AuditService) Id() string {
	return AUDIT_SVC
}

func (svc *AuditService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuditService) Start() error {
	svc.pgSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// Record appends one entry. The boolean tells the caller whether the
// write was durable; the triggering operation decides what to do with a
// false, and the default policy everywhere is to proceed.
func (svc *AuditService) Record(entry *model.AuditLog) bool {
	if entry.ID == "" {
		id, _ := uuid.NewV7()
		entry.ID = id.String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := svc.pgSvc.AppendAuditEntry(entry); err != nil {
		auditWriteFailuresTotal.Inc()
		log.WithFields(log.Fields{
			"action":        entry.Action,
			"data_category": entry.DataCategory,
			"error":         err.Error(),
		}).Error("Failed to append audit entry")
		return false
	}

	log.WithFields(log.Fields{
		"event":         "data_access",
		"action":        entry.Action,
		"data_category": entry.DataCategory,
		"actor":         strOrEmpty(entry.ActorUserID),
		"target":        strOrEmpty(entry.TargetUserID),
	}).Info("Audit entry recorded")
	return true
}

// LogDataAccess builds and records a data-access entry.
func (svc *AuditService) LogDataAccess(
	actorUserID *string,
	action model.AuditAction,
	category model.DataCategory,
	targetUserID *string,
	details map[string]interface{},
	ipAddress, userAgent string,
) bool {
	entry := &model.AuditLog{
		ActorUserID:  actorUserID,
		Action:       action,
		DataCategory: category,
		TargetUserID: targetUserID,
	}

	if details != nil {
		if raw, err := sonic.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	if ipAddress != "" {
		entry.IPAddress = &ipAddress
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}

	return svc.Record(entry)
}

// LogAuthEvent records a login/logout attempt against the auth-data
// category, including the failure reason when the attempt failed.
func (svc *AuditService) LogAuthEvent(userID *string, action model.AuditAction, success bool, ipAddress, userAgent, failureReason string) bool {
	details := map[string]interface{}{"success": success}
	if failureReason != "" {
		details["failure_reason"] = failureReason
	}
	return svc.LogDataAccess(userID, action, model.CategoryAuthData, userID, details, ipAddress, userAgent)
}

// History returns the newest-first audit trail for one target user.
func (svc *AuditService) History(req *dto.AuditHistoryRequest) (*dto.AuditHistoryResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, err := svc.pgSvc.QueryAuditHistory(req.TargetUserID, req.StartDate, req.EndDate, limit)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	return &dto.AuditHistoryResponse{Entries: entries, Count: len(entries)}, nil
}

// Summarize aggregates the range by action, category and day for the
// compliance dashboards. An empty range reports zero counts.
func (svc *AuditService) Summarize(start, end time.Time) (*dto.AuditSummaryResponse, error) {
	entries, err := svc.pgSvc.QueryAuditRange(start, end)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	summary := summarizeEntries(entries)
	summary.Period = dto.AuditSummaryPeriod{StartDate: start, EndDate: end}
	return summary, nil
}

func summarizeEntries(entries []model.AuditLog) *dto.AuditSummaryResponse {
	summary := &dto.AuditSummaryResponse{
		ByAction:   make(map[string]int64),
		ByCategory: make(map[string]int64),
		ByDay:      make(map[string]int64),
	}

	for _, e := range entries {
		summary.TotalCount++
		summary.ByAction[string(e.Action)]++
		summary.ByCategory[string(e.DataCategory)]++
		summary.ByDay[e.CreatedAt.UTC().Format("2006-01-02")]++
	}

	return summary
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
