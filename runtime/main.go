package main

import (
	"github.com/datashield-labs/warden_api/middleware"
	"github.com/datashield-labs/warden_api/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.PostgresService{},
		&services.RedisService{},
		&services.EncryptionService{},
		&services.TokenService{},

		&services.AuditService{},
		&services.NotificationService{},
		&services.RateLimitService{},
		&services.ThreatDetectionService{},
		&services.AccessControlService{},
		&services.IncidentService{},
		&services.LifecycleService{},

		&services.MinIOService{},
		&services.AuthService{},
		&services.UserService{},

		&middleware.AuthMiddleware{},
		&middleware.SecurityMiddleware{},

		&services.MonitoringService{},
		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
