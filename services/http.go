package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/services/handlers"
	"github.com/datashield-labs/warden_api/shared"
)

// The middleware services live in their own package; the HTTP layer only
// needs their handler factories.
type authGuard interface {
	DecodeClaims() fiber.Handler
	RequiredAuth() fiber.Handler
}

type securityGuard interface {
	SecurityHeaders() fiber.Handler
	DataAccessControl() fiber.Handler
}

type HttpService struct {
	context.DefaultService

	rateLimitSvc  *RateLimitService
	threatSvc     *ThreatDetectionService
	monitoringSvc *MonitoringService

	authHandler      *handlers.AuthHandler
	userHandler      *handlers.UserHandler
	auditHandler     *handlers.AuditHandler
	incidentHandler  *handlers.IncidentHandler
	lifecycleHandler *handlers.LifecycleHandler

	port   int
	server *fiber.App

	slowRequestThreshold time.Duration
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	svc.slowRequestThreshold = time.Second
	if ms, err := strconv.Atoi(os.Getenv("SLOW_REQUEST_MS")); err == nil && ms > 0 {
		svc.slowRequestThreshold = time.Duration(ms) * time.Millisecond
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.threatSvc = svc.Service(THREAT_SVC).(*ThreatDetectionService)
	svc.monitoringSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	auth := svc.Service("auth_middleware").(authGuard)
	security := svc.Service("security_middleware").(securityGuard)

	svc.authHandler = handlers.NewAuthHandler(svc.Service(AUTH_SVC).(*AuthService))
	svc.userHandler = handlers.NewUserHandler(svc.Service(USER_SVC).(*UserService))
	svc.auditHandler = handlers.NewAuditHandler(svc.Service(AUDIT_SVC).(*AuditService))
	svc.incidentHandler = handlers.NewIncidentHandler(svc.Service(INCIDENT_SVC).(*IncidentService))
	svc.lifecycleHandler = handlers.NewLifecycleHandler(
		svc.Service(USER_SVC).(*UserService),
		svc.Service(LIFECYCLE_SVC).(*LifecycleService),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Use(MonitoringMiddleware(svc.monitoringSvc))
	app.Use(svc.slowRequestLogger())
	app.Use(security.SecurityHeaders())
	app.Use(svc.rateLimitSvc.IPRateLimit())
	app.Use(svc.threatSvc.ScanMiddleware())
	app.Use(auth.DecodeClaims())
	app.Use(security.DataAccessControl())

	app.Get("/ping", svc.ping)

	v1 := app.Group("/api/v1")
	v1.Get("/ping", svc.ping)

	v1.Post("/register", svc.authHandler.Register)
	v1.Post("/login", svc.authHandler.Login)
	v1.Post("/logout", auth.RequiredAuth(), svc.authHandler.Logout)

	v1.Get("/me", auth.RequiredAuth(), svc.userHandler.GetMe)
	v1.Put("/me", auth.RequiredAuth(), svc.userHandler.UpdateMe)
	v1.Post("/me/deletion", auth.RequiredAuth(), svc.lifecycleHandler.RequestDeletion)
	v1.Post("/data/export", auth.RequiredAuth(), svc.userHandler.ExportData)

	v1.Get("/users/:user_id", auth.RequiredAuth(), svc.userHandler.GetUser)
	v1.Put("/users/:user_id", auth.RequiredAuth(), svc.userHandler.UpdateUser)
	v1.Delete("/users/:user_id", auth.RequiredAuth(), svc.userHandler.DeleteUser)

	admin := v1.Group("/admin", auth.RequiredAuth())
	admin.Get("/users", svc.userHandler.ListUsers)
	admin.Get("/audit-logs/:user_id", svc.auditHandler.History)
	admin.Get("/audit-summary", svc.auditHandler.Summary)
	admin.Get("/incidents", svc.incidentHandler.List)
	admin.Post("/incidents", svc.incidentHandler.Create)
	admin.Get("/incidents/:incident_id", svc.incidentHandler.Get)
	admin.Put("/incidents/:incident_id/status", svc.incidentHandler.UpdateStatus)
	admin.Get("/incident-summary", svc.incidentHandler.Summary)
	admin.Get("/deletion-requests", svc.lifecycleHandler.ListDeletionRequests)
	admin.Post("/deletion-requests/:request_id/process", svc.lifecycleHandler.ProcessDeletionRequest)
	admin.Post("/retention/sweep", svc.lifecycleHandler.RunRetentionSweep)

	app.Use(func(c *fiber.Ctx) error {
		return shared.ResponseNotFound(c)
	})

	svc.server = app

	log.WithField("port", svc.port).Info("HTTP service starting")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")
	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.StatusCode == http.StatusTooManyRequests {
			if data, ok := appErr.Data.(map[string]interface{}); ok {
				if retryAfter, ok := data["retry_after"].(int); ok {
					c.Set("Retry-After", strconv.Itoa(retryAfter))
				}
			}
		}
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}

func (svc *HttpService) slowRequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		if elapsed := time.Since(start); elapsed > svc.slowRequestThreshold {
			log.WithFields(log.Fields{
				"path":       c.Path(),
				"method":     c.Method(),
				"elapsed_ms": elapsed.Milliseconds(),
			}).Warn("Slow request")
		}
		return err
	}
}
