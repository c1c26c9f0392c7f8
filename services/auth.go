package services

import (
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// AuthService handles registration, login and logout. Every
// authentication attempt lands in the audit trail, failed ones included.
type AuthService struct {
	appContext.DefaultService

	pgSvc    *PostgresService
	encSvc   *EncryptionService
	jwtSvc   *TokenService
	auditSvc *AuditService
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	svc.pgSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.encSvc = svc.Service(ENCRYPTION_SVC).(*EncryptionService)
	svc.jwtSvc = svc.Service(JWT_SVC).(*TokenService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	return nil
}

func (svc *AuthService) Register(req *dto.RegisterRequest, ip, userAgent string) (*dto.RegisterResponse, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid registration")
	}

	if existing, err := svc.pgSvc.GetUserByUsername(req.Username); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	} else if existing != nil {
		return nil, shared.NewConflictError(nil, "Username already taken")
	}

	emailHash := EmailHash(req.Email)
	if existing, err := svc.pgSvc.GetUserByEmailHash(emailHash); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	} else if existing != nil {
		return nil, shared.NewConflictError(nil, "Email already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	encryptedEmail, err := svc.encSvc.Encrypt(req.Email)
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	id, _ := uuid.NewV7()
	now := time.Now().UTC()
	user := &model.User{
		ID:        id.String(),
		Email:     encryptedEmail,
		EmailHash: emailHash,
		Username:  req.Username,
		Password:  string(hashed),
		Scopes:    shared.ScopeUsersRead,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := svc.pgSvc.CreateUser(user); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	profileID, _ := uuid.NewV7()
	if err := svc.pgSvc.CreateProfile(&model.UserProfile{
		ID:        profileID.String(),
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Failed to create profile")
	}

	svc.auditSvc.LogDataAccess(&user.ID, model.ActionCreate, model.CategoryAuthData, &user.ID, map[string]interface{}{
		"event": "registration",
	}, ip, userAgent)

	log.WithField("user_id", user.ID).Info("User registered")

	return &dto.RegisterResponse{UserID: user.ID, Username: user.Username}, nil
}

func (svc *AuthService) Login(req *dto.LoginRequest, ip, userAgent string) (*dto.LoginResponse, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid credentials")
	}

	user, err := svc.lookupUser(req.EmailOrUsername)
	if err != nil {
		return nil, err
	}
	if user == nil {
		svc.auditSvc.LogAuthEvent(nil, model.ActionLogin, false, ip, userAgent, "unknown user")
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		svc.auditSvc.LogAuthEvent(&user.ID, model.ActionLogin, false, ip, userAgent, "bad password")
		return nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	sessionID, _ := uuid.NewV7()
	now := time.Now().UTC()
	if err := svc.pgSvc.CreateSession(&model.Session{
		ID:         sessionID.String(),
		UserID:     user.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		LastSeenAt: now,
		CreatedAt:  now,
	}); err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}

	user.LastLogin = now
	if err := svc.pgSvc.UpdateUser(user); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	pair, err := svc.jwtSvc.GenerateTokenPair(user.ID, sessionID.String(), userScopes(user))
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	svc.auditSvc.LogAuthEvent(&user.ID, model.ActionLogin, true, ip, userAgent, "")

	return &dto.LoginResponse{
		UserID:    user.ID,
		SessionID: sessionID.String(),
		TokenPair: *pair,
	}, nil
}

func (svc *AuthService) Logout(userID, sessionID, ip, userAgent string) error {
	if sessionID != "" {
		if err := svc.pgSvc.RevokeSession(sessionID); err != nil {
			log.WithError(err).WithField("session_id", sessionID).Warn("Failed to revoke session")
		}
	}

	svc.auditSvc.LogAuthEvent(&userID, model.ActionLogout, true, ip, userAgent, "")
	return nil
}

// lookupUser resolves a login identifier that may be an email or a
// username. Emails are stored encrypted, so the lookup goes through the
// deterministic hash column.
func (svc *AuthService) lookupUser(identifier string) (*model.User, error) {
	if strings.Contains(identifier, "@") {
		user, err := svc.pgSvc.GetUserByEmailHash(EmailHash(identifier))
		if err != nil {
			return nil, svc.pgSvc.HandleError(err)
		}
		return user, nil
	}

	user, err := svc.pgSvc.GetUserByUsername(identifier)
	if err != nil {
		return nil, svc.pgSvc.HandleError(err)
	}
	return user, nil
}

// userScopes expands the stored scope string, adding the admin scope for
// admin accounts so tokens carry the full grant.
func userScopes(user *model.User) []string {
	scopes := strings.Fields(user.Scopes)
	if user.IsAdmin {
		scopes = append(scopes, shared.ScopeAdmin)
	}
	return scopes
}
