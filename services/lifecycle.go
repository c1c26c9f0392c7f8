package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// Retention periods per data category. Profiles and audit trails keep the
// long compliance horizon; sessions are short-lived operational data.
const (
	RetentionUserProfiles = 2555 * 24 * time.Hour
	RetentionAccessLogs   = 365 * 24 * time.Hour
	RetentionAuditLogs    = 2555 * 24 * time.Hour
	RetentionSessions     = 30 * 24 * time.Hour
)

// lifecycleStore narrows PostgresService to the slice of storage that
// erasure and retention work touch, so tests can substitute a fake.
type lifecycleStore interface {
	GetUserByID(id string) (*model.User, error)
	UpdateUser(user *model.User) error
	GetProfileByUserID(userID string) (*model.UserProfile, error)
	UpdateProfile(profile *model.UserProfile) error
	CreateDeletionRequest(req *model.DataDeletionRequest) error
	GetDeletionRequest(id string) (*model.DataDeletionRequest, error)
	UpdateDeletionRequest(req *model.DataDeletionRequest) error
	ListDeletionRequests(status model.DeletionStatus, limit int) ([]model.DataDeletionRequest, error)
	UsersCreatedBefore(cutoff time.Time) ([]model.User, error)
	DeleteSessionsBefore(cutoff time.Time) (int64, error)
	DeleteAuditEntriesBefore(cutoff time.Time) (int64, error)
	HardDeleteUser(userID string) error
	HandleError(err error) error
}

type lifecycleAuditor interface {
	LogDataAccess(actor *string, action model.AuditAction, category model.DataCategory, target *string, details map[string]interface{}, ipAddress, userAgent string) bool
}

// LifecycleService enforces data-retention policy and executes
// right-to-erasure requests. Destructive work runs through a two-step
// commit: a request is marked processing before any data is touched, so a
// crash mid-delete leaves an inspectable trail instead of a silent retry.
type LifecycleService struct {
	appContext.DefaultService

	store    lifecycleStore
	auditSvc lifecycleAuditor
	encSvc   *EncryptionService

	sweepInterval time.Duration
	queueInterval time.Duration
	sweepEnabled  bool
}

const LIFECYCLE_SVC = "lifecycle_svc"

func (svc LifecycleService) Id() string {
	return LIFECYCLE_SVC
}

func (svc *LifecycleService) Configure(ctx *appContext.Context) error {
	svc.sweepInterval = 24 * time.Hour
	if v, err := strconv.Atoi(os.Getenv("RETENTION_SWEEP_HOURS")); err == nil && v > 0 {
		svc.sweepInterval = time.Duration(v) * time.Hour
	}
	svc.queueInterval = 5 * time.Minute
	svc.sweepEnabled = os.Getenv("RETENTION_SWEEP_DISABLED") == ""
	return svc.DefaultService.Configure(ctx)
}

func (svc *LifecycleService) Start() error {
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	svc.encSvc = svc.Service(ENCRYPTION_SVC).(*EncryptionService)

	if svc.sweepEnabled {
		go svc.startRetentionJob()
	}
	go svc.startDeletionQueueJob()

	return nil
}

// IsExpired reports whether a record created at the given time has
// outlived its retention period as of now.
func IsExpired(createdAt time.Time, retention time.Duration, now time.Time) bool {
	return now.After(createdAt.Add(retention))
}

// ==================== DELETION REQUESTS ====================

func (svc *LifecycleService) CreateDeletionRequest(userID, reason, ip, userAgent string) (*model.DataDeletionRequest, error) {
	user, err := svc.store.GetUserByID(userID)
	if err != nil {
		return nil, svc.store.HandleError(err)
	}
	if user == nil {
		return nil, shared.NewNotFoundError("User not found")
	}

	// One open request per user. A request mid-processing is still open.
	for _, status := range []model.DeletionStatus{model.DeletionPending, model.DeletionProcessing} {
		open, err := svc.store.ListDeletionRequests(status, 500)
		if err != nil {
			return nil, svc.store.HandleError(err)
		}
		for _, req := range open {
			if req.UserID == userID {
				return nil, shared.NewConflictError(nil, "A deletion request is already open for this user")
			}
		}
	}

	id, _ := uuid.NewV7()
	request := &model.DataDeletionRequest{
		ID:          id.String(),
		UserID:      userID,
		Reason:      reason,
		Status:      model.DeletionPending,
		RequestedAt: time.Now().UTC(),
	}

	if err := svc.store.CreateDeletionRequest(request); err != nil {
		return nil, svc.store.HandleError(err)
	}

	svc.auditSvc.LogDataAccess(&userID, model.ActionDelete, model.CategoryPersonalInfo, &userID, map[string]interface{}{
		"deletion_request_id": request.ID,
		"status":              request.Status,
	}, ip, userAgent)

	log.WithFields(log.Fields{
		"request_id": request.ID,
		"user_id":    userID,
	}).Info("Deletion request created")

	return request, nil
}

func (svc *LifecycleService) GetDeletionRequest(requestID string) (*model.DataDeletionRequest, error) {
	request, err := svc.store.GetDeletionRequest(requestID)
	if err != nil {
		return nil, svc.store.HandleError(err)
	}
	if request == nil {
		return nil, shared.NewNotFoundError("Deletion request not found")
	}
	return request, nil
}

func (svc *LifecycleService) ListDeletionRequests(status model.DeletionStatus, limit int) ([]model.DataDeletionRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	requests, err := svc.store.ListDeletionRequests(status, limit)
	if err != nil {
		return nil, svc.store.HandleError(err)
	}
	return requests, nil
}

// ProcessDeletionRequest executes an erasure request at the given level.
// The request moves to processing before any data is touched; only the
// final outcome writes completed or failed.
func (svc *LifecycleService) ProcessDeletionRequest(requestID string, level model.AnonymizationLevel, operatorUserID string) (*model.DataDeletionRequest, error) {
	request, err := svc.store.GetDeletionRequest(requestID)
	if err != nil {
		return nil, svc.store.HandleError(err)
	}
	if request == nil {
		return nil, shared.NewNotFoundError("Deletion request not found")
	}
	if request.Status != model.DeletionPending {
		return nil, shared.NewConflictError(nil, fmt.Sprintf("Deletion request is %s, not pending", request.Status))
	}

	request.Status = model.DeletionProcessing
	if err := svc.store.UpdateDeletionRequest(request); err != nil {
		return nil, svc.store.HandleError(err)
	}

	now := time.Now().UTC()
	request.ProcessedAt = &now

	if err := svc.Anonymize(request.UserID, level); err != nil {
		request.Status = model.DeletionFailed
		if updateErr := svc.store.UpdateDeletionRequest(request); updateErr != nil {
			log.WithError(updateErr).Error("Failed to mark deletion request failed")
		}

		log.WithFields(log.Fields{
			"request_id": request.ID,
			"user_id":    request.UserID,
			"error":      err.Error(),
		}).Error("Deletion request failed")

		return request, shared.NewInternalError(err)
	}

	request.Status = model.DeletionCompleted
	if err := svc.store.UpdateDeletionRequest(request); err != nil {
		return nil, svc.store.HandleError(err)
	}

	var actor *string
	if operatorUserID != "" {
		actor = &operatorUserID
	}
	svc.auditSvc.LogDataAccess(actor, model.ActionDelete, model.CategoryPersonalInfo, &request.UserID, map[string]interface{}{
		"deletion_request_id": request.ID,
		"level":               level,
	}, "", "")

	log.WithFields(log.Fields{
		"request_id": request.ID,
		"user_id":    request.UserID,
		"level":      level,
	}).Info("Deletion request completed")

	return request, nil
}

// ==================== ANONYMIZATION ====================

func (svc *LifecycleService) Anonymize(userID string, level model.AnonymizationLevel) error {
	switch level {
	case model.LevelSoftDelete:
		return svc.softDelete(userID)
	case model.LevelAnonymize:
		return svc.anonymizeUser(userID)
	case model.LevelHardDelete:
		return svc.hardDelete(userID)
	default:
		return fmt.Errorf("unknown anonymization level %q", level)
	}
}

// softDelete tombstones the user so the row drops out of queries but
// stays recoverable.
func (svc *LifecycleService) softDelete(userID string) error {
	user, err := svc.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return gorm.ErrRecordNotFound
	}

	now := time.Now().UTC()
	user.DeletedAt = &now
	if err := svc.store.UpdateUser(user); err != nil {
		return err
	}

	profile, err := svc.store.GetProfileByUserID(userID)
	if err != nil {
		return err
	}
	if profile != nil {
		profile.DeletedAt = &now
		return svc.store.UpdateProfile(profile)
	}
	return nil
}

// anonymizeUser strips personal data in place. The row stays live under
// its original id so audit references and reads keep resolving; only the
// field values are replaced. AnonymizedAt marks the row so retention
// sweeps skip it on later runs.
func (svc *LifecycleService) anonymizeUser(userID string) error {
	user, err := svc.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return gorm.ErrRecordNotFound
	}

	placeholder := fmt.Sprintf("anonymized_%d@deleted.local", time.Now().UnixNano())
	encrypted, err := svc.encSvc.Encrypt(placeholder)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user.Email = encrypted
	user.EmailHash = EmailHash(placeholder)
	user.Username = fmt.Sprintf("anonymized_%d", time.Now().UnixNano())
	user.Password = ""
	user.Scopes = ""
	user.AnonymizedAt = &now
	if err := svc.store.UpdateUser(user); err != nil {
		return err
	}

	profile, err := svc.store.GetProfileByUserID(userID)
	if err != nil {
		return err
	}
	if profile != nil {
		profile.FirstName = "Anonymized"
		profile.LastName = "User"
		profile.Bio = "This user's data has been anonymized"
		profile.AvatarURL = nil
		if err := svc.store.UpdateProfile(profile); err != nil {
			return err
		}
	}

	return nil
}

// hardDelete removes the user, profile and sessions in one transaction.
func (svc *LifecycleService) hardDelete(userID string) error {
	return svc.store.HardDeleteUser(userID)
}

// ==================== RETENTION SWEEP ====================

// RunRetentionSweep anonymizes users past the profile retention horizon
// and prunes expired sessions and audit entries.
func (svc *LifecycleService) RunRetentionSweep() (*dto.RetentionSweepResult, error) {
	now := time.Now().UTC()
	result := &dto.RetentionSweepResult{}

	expired, err := svc.store.UsersCreatedBefore(now.Add(-RetentionUserProfiles))
	if err != nil {
		return nil, svc.store.HandleError(err)
	}

	for _, user := range expired {
		result.ProcessedUsers++
		if err := svc.anonymizeUser(user.ID); err != nil {
			result.FailedUsers++
			log.WithFields(log.Fields{
				"user_id": user.ID,
				"error":   err.Error(),
			}).Error("Retention anonymization failed")
			continue
		}
		result.AnonymizedUsers++
	}

	deleted, err := svc.store.DeleteSessionsBefore(now.Add(-RetentionSessions))
	if err != nil {
		return nil, svc.store.HandleError(err)
	}
	result.DeletedSessions = int(deleted)

	if pruned, err := svc.store.DeleteAuditEntriesBefore(now.Add(-RetentionAuditLogs)); err != nil {
		log.WithError(err).Error("Audit retention prune failed")
	} else if pruned > 0 {
		log.WithField("pruned", pruned).Info("Pruned expired audit entries")
	}

	svc.auditSvc.LogDataAccess(nil, model.ActionDelete, model.CategorySystemData, nil, map[string]interface{}{
		"sweep":            "retention",
		"processed_users":  result.ProcessedUsers,
		"anonymized_users": result.AnonymizedUsers,
		"failed_users":     result.FailedUsers,
		"deleted_sessions": result.DeletedSessions,
	}, "", "")

	log.WithFields(log.Fields{
		"processed_users":  result.ProcessedUsers,
		"anonymized_users": result.AnonymizedUsers,
		"failed_users":     result.FailedUsers,
		"deleted_sessions": result.DeletedSessions,
	}).Info("Retention sweep finished")

	return result, nil
}

func (svc *LifecycleService) startRetentionJob() {
	ticker := time.NewTicker(svc.sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if _, err := svc.RunRetentionSweep(); err != nil {
			log.WithError(err).Error("Retention sweep failed")
		}
	}
}

// startDeletionQueueJob drains pending erasure requests in the
// background so the API call that files a request never blocks on the
// destructive work.
func (svc *LifecycleService) startDeletionQueueJob() {
	ticker := time.NewTicker(svc.queueInterval)
	defer ticker.Stop()

	for range ticker.C {
		pending, err := svc.store.ListDeletionRequests(model.DeletionPending, 50)
		if err != nil {
			log.WithError(err).Error("Failed to list pending deletion requests")
			continue
		}
		for _, request := range pending {
			if _, err := svc.ProcessDeletionRequest(request.ID, model.LevelAnonymize, ""); err != nil {
				log.WithFields(log.Fields{
					"request_id": request.ID,
					"error":      err.Error(),
				}).Error("Queued deletion request failed")
			}
		}
	}
}
