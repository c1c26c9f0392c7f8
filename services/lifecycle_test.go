package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

type fakeLifecycleStore struct {
	user     *model.User
	profile  *model.UserProfile
	requests map[string]*model.DataDeletionRequest

	// Every status written through UpdateDeletionRequest, in order.
	statusTrail []model.DeletionStatus

	failUserUpdate bool
}

func (f *fakeLifecycleStore) GetUserByID(id string) (*model.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}

func (f *fakeLifecycleStore) UpdateUser(user *model.User) error {
	if f.failUserUpdate {
		return errors.New("storage offline")
	}
	f.user = user
	return nil
}

func (f *fakeLifecycleStore) GetProfileByUserID(userID string) (*model.UserProfile, error) {
	return f.profile, nil
}

func (f *fakeLifecycleStore) UpdateProfile(profile *model.UserProfile) error {
	f.profile = profile
	return nil
}

func (f *fakeLifecycleStore) CreateDeletionRequest(req *model.DataDeletionRequest) error {
	if f.requests == nil {
		f.requests = make(map[string]*model.DataDeletionRequest)
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeLifecycleStore) GetDeletionRequest(id string) (*model.DataDeletionRequest, error) {
	return f.requests[id], nil
}

func (f *fakeLifecycleStore) UpdateDeletionRequest(req *model.DataDeletionRequest) error {
	f.statusTrail = append(f.statusTrail, req.Status)
	f.requests[req.ID] = req
	return nil
}

func (f *fakeLifecycleStore) ListDeletionRequests(status model.DeletionStatus, limit int) ([]model.DataDeletionRequest, error) {
	var out []model.DataDeletionRequest
	for _, req := range f.requests {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeLifecycleStore) UsersCreatedBefore(cutoff time.Time) ([]model.User, error) {
	return nil, nil
}

func (f *fakeLifecycleStore) DeleteSessionsBefore(cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeLifecycleStore) DeleteAuditEntriesBefore(cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeLifecycleStore) HardDeleteUser(userID string) error {
	f.user = nil
	f.profile = nil
	return nil
}

func (f *fakeLifecycleStore) HandleError(err error) error {
	return err
}

type nopAuditor struct{}

func (nopAuditor) LogDataAccess(actor *string, action model.AuditAction, category model.DataCategory, target *string, details map[string]interface{}, ipAddress, userAgent string) bool {
	return true
}

func newTestLifecycle(t *testing.T, store *fakeLifecycleStore) *LifecycleService {
	return &LifecycleService{
		store:    store,
		auditSvc: nopAuditor{},
		encSvc:   newTestEncryption(t),
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, IsExpired(now.Add(-29*24*time.Hour), RetentionSessions, now))
	assert.True(t, IsExpired(now.Add(-31*24*time.Hour), RetentionSessions, now))

	// Exactly at the boundary is not yet expired.
	assert.False(t, IsExpired(now.Add(-RetentionSessions), RetentionSessions, now))
}

func TestRetentionPeriods(t *testing.T) {
	assert.Equal(t, 2555*24*time.Hour, RetentionUserProfiles)
	assert.Equal(t, 365*24*time.Hour, RetentionAccessLogs)
	assert.Equal(t, 2555*24*time.Hour, RetentionAuditLogs)
	assert.Equal(t, 30*24*time.Hour, RetentionSessions)
}

func TestAnonymizeUnknownLevel(t *testing.T) {
	svc := &LifecycleService{}

	err := svc.Anonymize("user-1", model.AnonymizationLevel("shred"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "shred")
}

func TestAnonymizeKeepsRowReadable(t *testing.T) {
	store := &fakeLifecycleStore{
		user: &model.User{
			ID:       "user-1",
			Email:    "ciphertext",
			Username: "alice",
			Password: "hash",
			Scopes:   "users:read",
		},
		profile: &model.UserProfile{
			UserID:    "user-1",
			FirstName: "Alice",
			LastName:  "Nguyen",
			Bio:       "hello",
		},
	}
	svc := newTestLifecycle(t, store)

	require.NoError(t, svc.Anonymize("user-1", model.LevelAnonymize))

	// The row stays live under its id: readable, but only placeholders.
	user, err := store.GetUserByID("user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.ID)
	assert.Nil(t, user.DeletedAt)
	assert.NotNil(t, user.AnonymizedAt)
	assert.Contains(t, user.Username, "anonymized_")
	assert.NotEqual(t, "ciphertext", user.Email)
	assert.Len(t, user.EmailHash, 64)
	assert.Empty(t, user.Password)
	assert.Empty(t, user.Scopes)

	assert.Nil(t, store.profile.DeletedAt)
	assert.Equal(t, "Anonymized", store.profile.FirstName)
	assert.Equal(t, "User", store.profile.LastName)
	assert.Equal(t, "This user's data has been anonymized", store.profile.Bio)
	assert.Nil(t, store.profile.AvatarURL)
}

func TestSoftDeleteSetsTombstone(t *testing.T) {
	store := &fakeLifecycleStore{
		user:    &model.User{ID: "user-1", Username: "alice"},
		profile: &model.UserProfile{UserID: "user-1"},
	}
	svc := newTestLifecycle(t, store)

	require.NoError(t, svc.Anonymize("user-1", model.LevelSoftDelete))

	assert.NotNil(t, store.user.DeletedAt)
	assert.Nil(t, store.user.AnonymizedAt)
	assert.Equal(t, "alice", store.user.Username)
	assert.NotNil(t, store.profile.DeletedAt)
}

func TestProcessDeletionRequestTwoStepCommit(t *testing.T) {
	store := &fakeLifecycleStore{
		user: &model.User{ID: "user-1"},
		requests: map[string]*model.DataDeletionRequest{
			"req-1": {ID: "req-1", UserID: "user-1", Status: model.DeletionPending},
		},
	}
	svc := newTestLifecycle(t, store)

	request, err := svc.ProcessDeletionRequest("req-1", model.LevelSoftDelete, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, model.DeletionCompleted, request.Status)
	assert.NotNil(t, request.ProcessedAt)

	// Processing is persisted before any destructive work, then exactly
	// one terminal status.
	assert.Equal(t, []model.DeletionStatus{model.DeletionProcessing, model.DeletionCompleted}, store.statusTrail)
}

func TestProcessDeletionRequestFailureMarksFailed(t *testing.T) {
	store := &fakeLifecycleStore{
		user: &model.User{ID: "user-1"},
		requests: map[string]*model.DataDeletionRequest{
			"req-1": {ID: "req-1", UserID: "user-1", Status: model.DeletionPending},
		},
		failUserUpdate: true,
	}
	svc := newTestLifecycle(t, store)

	request, err := svc.ProcessDeletionRequest("req-1", model.LevelSoftDelete, "admin-1")
	assert.Error(t, err)

	assert.Equal(t, model.DeletionFailed, request.Status)
	assert.Equal(t, []model.DeletionStatus{model.DeletionProcessing, model.DeletionFailed}, store.statusTrail)
}

func TestProcessDeletionRequestRequiresPending(t *testing.T) {
	store := &fakeLifecycleStore{
		user: &model.User{ID: "user-1"},
		requests: map[string]*model.DataDeletionRequest{
			"req-1": {ID: "req-1", UserID: "user-1", Status: model.DeletionProcessing},
		},
	}
	svc := newTestLifecycle(t, store)

	_, err := svc.ProcessDeletionRequest("req-1", model.LevelSoftDelete, "admin-1")
	require.Error(t, err)

	var appErr *shared.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.StatusCode)
	assert.Empty(t, store.statusTrail)
}

func TestCreateDeletionRequestRejectsOpenRequest(t *testing.T) {
	for _, status := range []model.DeletionStatus{model.DeletionPending, model.DeletionProcessing} {
		store := &fakeLifecycleStore{
			user: &model.User{ID: "user-1"},
			requests: map[string]*model.DataDeletionRequest{
				"req-1": {ID: "req-1", UserID: "user-1", Status: status},
			},
		}
		svc := newTestLifecycle(t, store)

		_, err := svc.CreateDeletionRequest("user-1", "gdpr", "10.0.0.1", "test-agent")
		require.Error(t, err, string(status))

		var appErr *shared.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 409, appErr.StatusCode)
	}
}

func TestCreateDeletionRequestAfterCompleted(t *testing.T) {
	store := &fakeLifecycleStore{
		user: &model.User{ID: "user-1"},
		requests: map[string]*model.DataDeletionRequest{
			"req-1": {ID: "req-1", UserID: "user-1", Status: model.DeletionCompleted},
		},
	}
	svc := newTestLifecycle(t, store)

	request, err := svc.CreateDeletionRequest("user-1", "gdpr", "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, model.DeletionPending, request.Status)
}
