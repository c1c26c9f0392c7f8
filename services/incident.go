package services

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// authorityReportWindow is the regulatory window from detection to
// supervisory-authority notification for qualifying breaches.
const authorityReportWindow = 72 * time.Hour

var statusOrder = map[model.IncidentStatus]int{
	model.StatusDetected:      0,
	model.StatusInvestigating: 1,
	model.StatusContained:     2,
	model.StatusResolved:      3,
}

// validateTransition enforces the forward-only lifecycle. Skipping ahead
// is legal; moving backwards or out of the terminal state is not.
func validateTransition(from, to model.IncidentStatus) error {
	fromOrd, ok := statusOrder[from]
	if !ok {
		return fmt.Errorf("unknown incident status %q", from)
	}
	toOrd, ok := statusOrder[to]
	if !ok {
		return fmt.Errorf("unknown incident status %q", to)
	}
	if toOrd <= fromOrd {
		return fmt.Errorf("invalid incident transition %s -> %s", from, to)
	}
	return nil
}

// IncidentService owns the security-incident lifecycle: creation,
// severity-routed notification, the 72h authority-report deadline and the
// forward-only status machine. It also sweeps the audit trail for
// suspicious activity out of band.
type IncidentService struct {
	appContext.DefaultService

	pgSvc     *PostgresService
	auditSvc  *AuditService
	notifySvc *NotificationService

	breachUserThreshold int
	sweepInterval       time.Duration

	suppressMu    sync.Mutex
	lastEscalated map[string]time.Time
}

const INCIDENT_SVC = "incident_svc"

func (svc IncidentService) Id() string {
	return INCIDENT_SVC
}

func (svc *IncidentService) Configure(ctx *appContext.Context) error {
	svc.breachUserThreshold = 100
	if v, err := strconv.Atoi(os.Getenv("BREACH_USER_THRESHOLD")); err == nil && v > 0 {
		svc.breachUserThreshold = v
	}
	svc.sweepInterval = 15 * time.Minute
	svc.lastEscalated = make(map[string]time.Time)
	return svc.DefaultService.Configure(ctx)
}

func (svc *IncidentService) Start() error {
	svc.pgSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	svc.notifySvc = svc.Service(NOTIFICATION_SVC).(*NotificationService)

	go svc.startSweepJob()

	return nil
}

// ==================== LIFECYCLE ====================

// RequiresAuthorityReport applies the breach-notification rule: data
// breaches report to the supervisory authority when severity is high or
// critical, or when enough users are affected.
func (svc *IncidentService) RequiresAuthorityReport(incidentType model.IncidentType, severity model.IncidentSeverity, affectedUsers int) bool {
	if incidentType != model.IncidentDataBreach {
		return false
	}
	if severity == model.SeverityHigh || severity == model.SeverityCritical {
		return true
	}
	return affectedUsers > svc.breachUserThreshold
}

func (svc *IncidentService) CreateIncident(req *dto.CreateIncidentRequest) (*model.SecurityIncident, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid incident")
	}

	id, _ := uuid.NewV7()
	now := time.Now().UTC()

	incident := &model.SecurityIncident{
		ID:                 id.String(),
		IncidentType:       model.IncidentType(req.IncidentType),
		Severity:           model.IncidentSeverity(req.Severity),
		Title:              req.Title,
		Description:        req.Description,
		AffectedUsersCount: req.AffectedUsersCount,
		DetectionSource:    req.DetectionSource,
		DetectionDate:      now,
		Status:             model.StatusDetected,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if incident.DetectionSource == "" {
		incident.DetectionSource = "system"
	}
	if len(req.AffectedDataTypes) > 0 {
		if raw, err := sonic.Marshal(req.AffectedDataTypes); err == nil {
			incident.AffectedDataTypes = raw
		}
	}

	if svc.RequiresAuthorityReport(incident.IncidentType, incident.Severity, incident.AffectedUsersCount) {
		deadline := now.Add(authorityReportWindow)
		incident.ReportedToAuthority = true
		incident.AuthorityReportDeadline = &deadline
	}

	if err := svc.pgSvc.CreateIncident(incident); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	incidentsTotal.WithLabelValues(string(incident.Severity)).Inc()
	openIncidentsGauge.Inc()

	// Incident creation is itself an auditable system event.
	svc.auditSvc.LogDataAccess(nil, model.ActionCreate, model.CategorySystemData, nil, map[string]interface{}{
		"incident_id":          incident.ID,
		"incident_type":        incident.IncidentType,
		"severity":             incident.Severity,
		"detection_source":     incident.DetectionSource,
		"affected_users_count": incident.AffectedUsersCount,
	}, "", "")

	svc.notifySvc.Notify(incident.Severity,
		"Security incident detected: "+incident.Title,
		incident.Description,
		map[string]interface{}{
			"incident_id":   incident.ID,
			"incident_type": incident.IncidentType,
			"severity":      incident.Severity,
		})

	if incident.AuthorityReportDeadline != nil {
		svc.notifySvc.Notify(model.SeverityCritical,
			"Authority report required within 72 hours",
			fmt.Sprintf("Incident %s qualifies for supervisory-authority notification.", incident.ID),
			map[string]interface{}{
				"incident_id": incident.ID,
				"deadline":    incident.AuthorityReportDeadline.Format(time.RFC3339),
			})
	}

	log.WithFields(log.Fields{
		"incident_id": incident.ID,
		"severity":    incident.Severity,
	}).Info("Security incident created")

	return incident, nil
}

// UpdateStatus validates the requested transition against the current
// state before persisting. An invalid transition is a reported error, not
// a silent no-op.
func (svc *IncidentService) UpdateStatus(incidentID string, req *dto.UpdateIncidentStatusRequest, resolverUserID string) (*model.SecurityIncident, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid status update")
	}

	incident, err := svc.pgSvc.GetIncident(incidentID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	if incident == nil {
		return nil, shared.NewNotFoundError("Incident not found")
	}

	newStatus := model.IncidentStatus(req.Status)
	if err := validateTransition(incident.Status, newStatus); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid incident transition")
	}

	oldStatus := incident.Status
	now := time.Now().UTC()

	incident.Status = newStatus
	incident.UpdatedAt = now
	if req.ResponseActions != nil {
		incident.ResponseActions = req.ResponseActions
	}
	if newStatus == model.StatusResolved {
		incident.ResolutionDate = &now
	}

	if err := svc.pgSvc.UpdateIncident(incident); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	var actor *string
	if resolverUserID != "" {
		actor = &resolverUserID
	}
	svc.auditSvc.LogDataAccess(actor, model.ActionUpdate, model.CategorySystemData, nil, map[string]interface{}{
		"incident_id": incident.ID,
		"old_status":  oldStatus,
		"new_status":  newStatus,
	}, "", "")

	if newStatus == model.StatusResolved {
		openIncidentsGauge.Dec()
		svc.notifySvc.Notify(model.SeverityLow,
			"Security incident resolved: "+incident.Title,
			fmt.Sprintf("Resolved after %.1f hours.", now.Sub(incident.DetectionDate).Hours()),
			map[string]interface{}{"incident_id": incident.ID})
	}

	log.WithFields(log.Fields{
		"incident_id": incident.ID,
		"status":      newStatus,
	}).Info("Incident status updated")

	return incident, nil
}

func (svc *IncidentService) GetIncident(incidentID string) (*model.SecurityIncident, error) {
	incident, err := svc.pgSvc.GetIncident(incidentID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	if incident == nil {
		return nil, shared.NewNotFoundError("Incident not found")
	}
	return incident, nil
}

func (svc *IncidentService) ListIncidents(limit int) ([]model.SecurityIncident, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	incidents, err := svc.pgSvc.ListIncidents(limit)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	return incidents, nil
}

// Summary aggregates the incident log over a range for the compliance
// dashboard. Defaults to the trailing 30 days.
func (svc *IncidentService) Summary(start, end *time.Time) (*dto.IncidentSummaryResponse, error) {
	to := time.Now().UTC()
	from := to.Add(-30 * 24 * time.Hour)
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}

	incidents, err := svc.pgSvc.IncidentsInRange(from, to)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	summary := summarizeIncidents(incidents)
	summary.Period = dto.AuditSummaryPeriod{StartDate: from, EndDate: to}
	return summary, nil
}

func summarizeIncidents(incidents []model.SecurityIncident) *dto.IncidentSummaryResponse {
	summary := &dto.IncidentSummaryResponse{
		ByType: make(map[string]int64),
	}

	var resolvedHours float64
	var resolvedCount int64

	for _, inc := range incidents {
		summary.TotalIncidents++
		summary.ByType[string(inc.IncidentType)]++
		summary.TotalAffectedUsers += int64(inc.AffectedUsersCount)

		if inc.Status != model.StatusResolved {
			summary.OpenIncidents++
		}
		switch inc.Severity {
		case model.SeverityCritical:
			summary.CriticalIncidents++
		case model.SeverityHigh:
			summary.HighIncidents++
		}
		if inc.ReportedToAuthority && inc.Status != model.StatusResolved {
			summary.PendingAuthorityCount++
		}
		if inc.ResolutionDate != nil {
			resolvedHours += inc.ResolutionDate.Sub(inc.DetectionDate).Hours()
			resolvedCount++
		}
	}

	if resolvedCount > 0 {
		avg := resolvedHours / float64(resolvedCount)
		summary.AvgResolutionHours = &avg
	}

	return summary
}

// ==================== SUSPICIOUS-ACTIVITY SWEEPS ====================

func (svc *IncidentService) startSweepJob() {
	ticker := time.NewTicker(svc.sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		activities, err := svc.DetectSuspiciousActivity()
		if err != nil {
			log.WithError(err).Error("Suspicious-activity sweep failed")
			continue
		}
		for _, activity := range activities {
			svc.escalateActivity(activity)
		}
	}
}

// DetectSuspiciousActivity scans the recent audit trail for anomalies:
// high-volume access, one user on many addresses, repeated denials.
func (svc *IncidentService) DetectSuspiciousActivity() ([]dto.SuspiciousActivity, error) {
	now := time.Now().UTC()
	var activities []dto.SuspiciousActivity

	highVolume, err := svc.pgSvc.HighVolumeAccess(now.Add(-time.Hour), 100)
	if err != nil {
		return nil, err
	}
	for _, stat := range highVolume {
		activities = append(activities, dto.SuspiciousActivity{
			Type:        "high_volume_access",
			Severity:    string(model.SeverityMedium),
			Description: fmt.Sprintf("User %s made %d audited accesses in one hour", stat.ActorUserID, stat.AccessCount),
			Details: map[string]interface{}{
				"user_id":      stat.ActorUserID,
				"ip_address":   stat.IPAddress,
				"access_count": stat.AccessCount,
			},
			DetectedAt: now,
		})
	}

	multiIP, err := svc.pgSvc.MultiIPAccess(now.Add(-30*time.Minute), 3)
	if err != nil {
		return nil, err
	}
	for _, stat := range multiIP {
		activities = append(activities, dto.SuspiciousActivity{
			Type:        "multi_ip_access",
			Severity:    string(model.SeverityHigh),
			Description: fmt.Sprintf("User %s accessed from %d addresses in 30 minutes", stat.ActorUserID, stat.IPCount),
			Details: map[string]interface{}{
				"user_id":  stat.ActorUserID,
				"ip_count": stat.IPCount,
			},
			DetectedAt: now,
		})
	}

	denied, err := svc.pgSvc.RepeatedDeniedAccess(now.Add(-time.Hour), 10)
	if err != nil {
		return nil, err
	}
	for _, stat := range denied {
		activities = append(activities, dto.SuspiciousActivity{
			Type:        "repeated_failed_access",
			Severity:    string(model.SeverityHigh),
			Description: fmt.Sprintf("IP %s produced %d denied accesses in one hour", stat.IPAddress, stat.FailedAttempts),
			Details: map[string]interface{}{
				"ip_address":      stat.IPAddress,
				"failed_attempts": stat.FailedAttempts,
			},
			DetectedAt: now,
		})
	}

	return activities, nil
}

// escalateActivity opens an incident for high-severity findings, with a
// one-hour suppression per activity key so a sustained anomaly produces
// one incident, not one per sweep.
func (svc *IncidentService) escalateActivity(activity dto.SuspiciousActivity) {
	if activity.Severity != string(model.SeverityHigh) && activity.Severity != string(model.SeverityCritical) {
		log.WithFields(log.Fields{
			"type":        activity.Type,
			"description": activity.Description,
		}).Warn("Suspicious activity detected")
		return
	}

	key := activity.Type + ":" + fmt.Sprint(activity.Details["user_id"]) + ":" + fmt.Sprint(activity.Details["ip_address"])

	svc.suppressMu.Lock()
	last, seen := svc.lastEscalated[key]
	if seen && time.Since(last) < time.Hour {
		svc.suppressMu.Unlock()
		return
	}
	svc.lastEscalated[key] = time.Now()
	svc.suppressMu.Unlock()

	if _, err := svc.CreateIncident(&dto.CreateIncidentRequest{
		IncidentType:    string(model.IncidentUnauthorizedAccess),
		Severity:        activity.Severity,
		Title:           "Suspicious activity: " + activity.Type,
		Description:     activity.Description,
		DetectionSource: "audit_sweep",
	}); err != nil {
		log.WithError(err).Error("Failed to open incident for suspicious activity")
	}
}
