package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datashield-labs/warden_api/model"
)

type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		// Fallback to individual environment variables
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "warden_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			host, user, password, dbname, port, sslmode)
	}

	return ds.DefaultService.Configure(ctx)
}

// Start opens the connection and migrates any tables that have changed
// since last runtime.
func (ds *PostgresService) Start() (err error) {
	ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return err
	}

	models := []interface{}{
		&model.User{},
		&model.UserProfile{},
		&model.Session{},
		&model.AuditLog{},
		&model.SecurityIncident{},
		&model.DataDeletionRequest{},
	}

	if err = ds.db.AutoMigrate(models...); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *PostgresService) Shutdown() {
}

// ==================== AUDIT LOG ====================

func (ds *PostgresService) AppendAuditEntry(entry *model.AuditLog) error {
	return ds.db.Create(entry).Error
}

func (ds *PostgresService) QueryAuditHistory(targetUserID string, start, end *time.Time, limit int) ([]model.AuditLog, error) {
	q := ds.db.Where("target_user_id = ?", targetUserID)

	if start != nil {
		q = q.Where("created_at >= ?", *start)
	}
	if end != nil {
		q = q.Where("created_at <= ?", *end)
	}

	var entries []model.AuditLog
	err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (ds *PostgresService) QueryAuditRange(start, end time.Time) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	err := ds.db.
		Select("id", "action", "data_category", "created_at").
		Where("created_at BETWEEN ? AND ?", start, end).
		Find(&entries).Error
	return entries, err
}

func (ds *PostgresService) DeleteAuditEntriesBefore(cutoff time.Time) (int64, error) {
	res := ds.db.Where("created_at < ?", cutoff).Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}

// AccessVolumeStat aggregates audit activity per actor and source address.
type AccessVolumeStat struct {
	ActorUserID string    `gorm:"column:actor_user_id"`
	IPAddress   string    `gorm:"column:ip_address"`
	AccessCount int64     `gorm:"column:access_count"`
	FirstAccess time.Time `gorm:"column:first_access"`
	LastAccess  time.Time `gorm:"column:last_access"`
}

func (ds *PostgresService) HighVolumeAccess(since time.Time, threshold int64) ([]AccessVolumeStat, error) {
	var stats []AccessVolumeStat
	err := ds.db.Model(&model.AuditLog{}).
		Select("actor_user_id, ip_address, COUNT(*) as access_count, MIN(created_at) as first_access, MAX(created_at) as last_access").
		Where("created_at >= ? AND actor_user_id IS NOT NULL", since).
		Group("actor_user_id, ip_address").
		Having("COUNT(*) > ?", threshold).
		Order("access_count DESC").
		Scan(&stats).Error
	return stats, err
}

type MultiIPStat struct {
	ActorUserID string `gorm:"column:actor_user_id"`
	IPCount     int64  `gorm:"column:ip_count"`
}

func (ds *PostgresService) MultiIPAccess(since time.Time, threshold int64) ([]MultiIPStat, error) {
	var stats []MultiIPStat
	err := ds.db.Model(&model.AuditLog{}).
		Select("actor_user_id, COUNT(DISTINCT ip_address) as ip_count").
		Where("created_at >= ? AND actor_user_id IS NOT NULL", since).
		Group("actor_user_id").
		Having("COUNT(DISTINCT ip_address) > ?", threshold).
		Scan(&stats).Error
	return stats, err
}

type DeniedAccessStat struct {
	IPAddress      string    `gorm:"column:ip_address"`
	FailedAttempts int64     `gorm:"column:failed_attempts"`
	FirstAttempt   time.Time `gorm:"column:first_attempt"`
	LastAttempt    time.Time `gorm:"column:last_attempt"`
}

func (ds *PostgresService) RepeatedDeniedAccess(since time.Time, threshold int64) ([]DeniedAccessStat, error) {
	var stats []DeniedAccessStat
	err := ds.db.Model(&model.AuditLog{}).
		Select("ip_address, COUNT(*) as failed_attempts, MIN(created_at) as first_attempt, MAX(created_at) as last_attempt").
		Where("created_at >= ? AND action = ?", since, model.ActionAccessDenied).
		Group("ip_address").
		Having("COUNT(*) > ?", threshold).
		Order("failed_attempts DESC").
		Scan(&stats).Error
	return stats, err
}

// ==================== SECURITY INCIDENTS ====================

func (ds *PostgresService) CreateIncident(incident *model.SecurityIncident) error {
	return ds.db.Create(incident).Error
}

func (ds *PostgresService) GetIncident(id string) (*model.SecurityIncident, error) {
	var incident model.SecurityIncident
	err := ds.db.Where("id = ?", id).First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &incident, nil
}

func (ds *PostgresService) UpdateIncident(incident *model.SecurityIncident) error {
	return ds.db.Save(incident).Error
}

func (ds *PostgresService) ListIncidents(limit int) ([]model.SecurityIncident, error) {
	var incidents []model.SecurityIncident
	err := ds.db.Order("detection_date DESC").Limit(limit).Find(&incidents).Error
	return incidents, err
}

func (ds *PostgresService) IncidentsInRange(start, end time.Time) ([]model.SecurityIncident, error) {
	var incidents []model.SecurityIncident
	err := ds.db.Where("detection_date BETWEEN ? AND ?", start, end).Find(&incidents).Error
	return incidents, err
}

// ==================== DELETION REQUESTS ====================

func (ds *PostgresService) CreateDeletionRequest(req *model.DataDeletionRequest) error {
	return ds.db.Create(req).Error
}

func (ds *PostgresService) GetDeletionRequest(id string) (*model.DataDeletionRequest, error) {
	var req model.DataDeletionRequest
	err := ds.db.Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (ds *PostgresService) UpdateDeletionRequest(req *model.DataDeletionRequest) error {
	return ds.db.Save(req).Error
}

func (ds *PostgresService) ListDeletionRequests(status model.DeletionStatus, limit int) ([]model.DataDeletionRequest, error) {
	q := ds.db.Order("requested_at ASC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var requests []model.DataDeletionRequest
	err := q.Find(&requests).Error
	return requests, err
}

// ==================== USERS & SESSIONS ====================

func (ds *PostgresService) CreateUser(user *model.User) error {
	return ds.db.Create(user).Error
}

func (ds *PostgresService) GetUserByID(id string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("id = ? AND deleted_at IS NULL", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (ds *PostgresService) GetUserByUsername(username string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("username = ? AND deleted_at IS NULL", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (ds *PostgresService) GetUserByEmailHash(emailHash string) (*model.User, error) {
	var user model.User
	err := ds.db.Where("email_hash = ? AND deleted_at IS NULL", emailHash).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (ds *PostgresService) UpdateUser(user *model.User) error {
	return ds.db.Save(user).Error
}

func (ds *PostgresService) ListUsers(page, limit int, search string) ([]model.User, int64, error) {
	q := ds.db.Model(&model.User{}).Where("deleted_at IS NULL")
	if search != "" {
		q = q.Where("username ILIKE ?", "%"+search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	return users, total, err
}

func (ds *PostgresService) UsersCreatedBefore(cutoff time.Time) ([]model.User, error) {
	var users []model.User
	err := ds.db.Where("created_at < ? AND deleted_at IS NULL AND anonymized_at IS NULL", cutoff).Find(&users).Error
	return users, err
}

// HardDeleteUser removes the user, profile and sessions in one
// transaction.
func (ds *PostgresService) HardDeleteUser(userID string) error {
	return ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.UserProfile{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Delete(&model.User{}).Error
	})
}

func (ds *PostgresService) CreateProfile(profile *model.UserProfile) error {
	return ds.db.Create(profile).Error
}

func (ds *PostgresService) GetProfileByUserID(userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := ds.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (ds *PostgresService) UpdateProfile(profile *model.UserProfile) error {
	return ds.db.Save(profile).Error
}

func (ds *PostgresService) CreateSession(session *model.Session) error {
	return ds.db.Create(session).Error
}

func (ds *PostgresService) RevokeSession(sessionID string) error {
	now := time.Now()
	return ds.db.Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", now).Error
}

func (ds *PostgresService) DeleteSessionsBefore(cutoff time.Time) (int64, error) {
	res := ds.db.Where("created_at < ?", cutoff).Delete(&model.Session{})
	return res.RowsAffected, res.Error
}

// ==================== ERROR MAPPING ====================

func (ds *PostgresService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "duplicate key value") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "does not exist") {
			statusCode = http.StatusInternalServerError
			errorType = "SCHEMA_ERROR"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}
