package services

import (
	"bytes"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// UserService is the business layer over user and profile records.
// Personal fields are decrypted on the way out and re-encrypted on write.
type UserService struct {
	appContext.DefaultService

	pgSvc        *PostgresService
	encSvc       *EncryptionService
	auditSvc     *AuditService
	lifecycleSvc *LifecycleService
	minioSvc     *MinIOService
}

const USER_SVC = "user_svc"

func (svc UserService) Id() string {
	return USER_SVC
}

func (svc *UserService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *UserService) Start() error {
	svc.pgSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.encSvc = svc.Service(ENCRYPTION_SVC).(*EncryptionService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	svc.lifecycleSvc = svc.Service(LIFECYCLE_SVC).(*LifecycleService)
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)
	return nil
}

func (svc *UserService) GetUser(userID string) (*dto.UserResponse, error) {
	user, err := svc.pgSvc.GetUserByID(userID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	if user == nil {
		return nil, shared.NewNotFoundError("User not found")
	}

	return svc.toUserResponse(user, true)
}

func (svc *UserService) UpdateUser(userID string, req *dto.UpdateUserRequest) (*dto.UserResponse, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid update")
	}

	user, err := svc.pgSvc.GetUserByID(userID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	if user == nil {
		return nil, shared.NewNotFoundError("User not found")
	}

	if req.Email != nil {
		hash := EmailHash(*req.Email)
		if existing, err := svc.pgSvc.GetUserByEmailHash(hash); err != nil {
			return nil, svc.pgSvc.HandleError(err)
		} else if existing != nil && existing.ID != userID {
			return nil, shared.NewConflictError(nil, "Email already registered")
		}

		encrypted, err := svc.encSvc.Encrypt(*req.Email)
		if err != nil {
			return nil, shared.NewInternalError(err)
		}
		user.Email = encrypted
		user.EmailHash = hash
	}
	if req.Username != nil {
		if existing, err := svc.pgSvc.GetUserByUsername(*req.Username); err != nil {
			return nil, svc.pgSvc.HandleError(err)
		} else if existing != nil && existing.ID != userID {
			return nil, shared.NewConflictError(nil, "Username already taken")
		}
		user.Username = *req.Username
	}

	user.UpdatedAt = time.Now().UTC()
	if err := svc.pgSvc.UpdateUser(user); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	if req.FirstName != nil || req.LastName != nil || req.Bio != nil || req.AvatarURL != nil {
		if err := svc.updateProfile(userID, req); err != nil {
			return nil, err
		}
	}

	return svc.toUserResponse(user, true)
}

func (svc *UserService) updateProfile(userID string, req *dto.UpdateUserRequest) error {
	profile, err := svc.pgSvc.GetProfileByUserID(userID)
	if err != nil {
		return svc.pgSvc.HandleError(err)
	}
	if profile == nil {
		id, _ := uuid.NewV7()
		profile = &model.UserProfile{
			ID:        id.String(),
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}
		if err := svc.pgSvc.CreateProfile(profile); err != nil {
			return svc.pgSvc.HandleError(err)
		}
	}

	if req.FirstName != nil {
		profile.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		profile.LastName = *req.LastName
	}
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = req.AvatarURL
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := svc.pgSvc.UpdateProfile(profile); err != nil {
		return svc.pgSvc.HandleError(err)
	}
	return nil
}

// DeleteUser files an erasure request instead of deleting in-band; the
// lifecycle queue does the destructive work.
func (svc *UserService) DeleteUser(userID, reason, ip, userAgent string) (*model.DataDeletionRequest, error) {
	return svc.lifecycleSvc.CreateDeletionRequest(userID, reason, ip, userAgent)
}

func (svc *UserService) ListUsers(page, limit int, search string) (*dto.UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	users, total, err := svc.pgSvc.ListUsers(page, limit, search)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	responses := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		// List rows skip profile hydration; detail views carry it.
		resp, err := svc.toUserResponse(&users[i], false)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}

	return &dto.UserListResponse{
		Users: responses,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// ExportUserData bundles everything held about a user into a JSON object
// in the export bucket and returns a presigned download link.
func (svc *UserService) ExportUserData(userID, ip, userAgent string) (*dto.DataExportResponse, error) {
	user, err := svc.pgSvc.GetUserByID(userID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	if user == nil {
		return nil, shared.NewNotFoundError("User not found")
	}

	email, err := svc.encSvc.Decrypt(user.Email)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	profile, err := svc.pgSvc.GetProfileByUserID(userID)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	history, err := svc.pgSvc.QueryAuditHistory(userID, nil, nil, 1000)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	bundle := map[string]interface{}{
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"user": map[string]interface{}{
			"id":         user.ID,
			"email":      email,
			"username":   user.Username,
			"created_at": user.CreatedAt,
			"last_login": user.LastLogin,
		},
		"profile":       profile,
		"audit_history": history,
	}

	payload, err := sonic.Marshal(bundle)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	objectKey := fmt.Sprintf("exports/%s/%d.json", userID, time.Now().Unix())
	if _, err := svc.minioSvc.UploadObject(objectKey, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return nil, shared.NewInternalError(err)
	}

	expiry := 24 * time.Hour
	url, err := svc.minioSvc.GetObjectURL(objectKey, expiry)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	svc.auditSvc.LogDataAccess(&userID, model.ActionExport, model.CategoryPersonalInfo, &userID, map[string]interface{}{
		"object_key": objectKey,
		"size_bytes": len(payload),
	}, ip, userAgent)

	log.WithFields(log.Fields{
		"user_id":    userID,
		"object_key": objectKey,
	}).Info("User data exported")

	return &dto.DataExportResponse{
		ObjectKey:   objectKey,
		DownloadURL: url,
		ExpiresAt:   time.Now().UTC().Add(expiry),
		SizeBytes:   int64(len(payload)),
	}, nil
}

func (svc *UserService) toUserResponse(user *model.User, withProfile bool) (*dto.UserResponse, error) {
	email, err := svc.encSvc.Decrypt(user.Email)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	resp := &dto.UserResponse{
		ID:        user.ID,
		Email:     email,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt,
	}

	if withProfile {
		profile, err := svc.pgSvc.GetProfileByUserID(user.ID)
		if err != nil {
			return nil, svc.pgSvc.HandleError(err)
		}
		if profile != nil {
			resp.Profile = &dto.ProfileResponse{
				FirstName: profile.FirstName,
				LastName:  profile.LastName,
				Bio:       profile.Bio,
				AvatarURL: profile.AvatarURL,
			}
		}
	}

	return resp, nil
}
