package middleware

import (
	"os"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/services"
	"github.com/datashield-labs/warden_api/shared"
)

// accessDecider and accessAuditor narrow the access-control and audit
// services to the calls this middleware makes, so tests can substitute
// fakes.
type accessDecider interface {
	Decide(path, method string, claims *dto.AuthClaims) dto.AccessDecision
	ResourceOwner(path, method string) string
}

type accessAuditor interface {
	LogDataAccess(actor *string, action model.AuditAction, category model.DataCategory, target *string, details map[string]interface{}, ipAddress, userAgent string) bool
}

// SecurityMiddleware enforces route classifications and writes the audit
// trail for classified endpoints. Every classified request produces
// exactly one audit entry, allowed or denied.
type SecurityMiddleware struct {
	context.DefaultService

	acSvc    accessDecider
	auditSvc accessAuditor

	environment string
}

const SECURITY_MIDDLEWARE_SVC = "security_middleware"

func (svc SecurityMiddleware) Id() string {
	return SECURITY_MIDDLEWARE_SVC
}

func (svc *SecurityMiddleware) Configure(ctx *context.Context) error {
	svc.environment = os.Getenv("ENVIRONMENT")
	if svc.environment == "" {
		svc.environment = shared.EnvDevelopment
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityMiddleware) Start() error {
	svc.acSvc = svc.Service(services.ACCESS_CONTROL_SVC).(*services.AccessControlService)
	svc.auditSvc = svc.Service(services.AUDIT_SVC).(*services.AuditService)
	return nil
}

// SecurityHeaders applies the standard hardening headers. HSTS only goes
// out in production where TLS termination is guaranteed.
func (svc *SecurityMiddleware) SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if svc.environment == shared.EnvProduction {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

// DataAccessControl decides the request against the route classification
// table and audits the outcome.
func (svc *SecurityMiddleware) DataAccessControl() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, _ := c.Locals(shared.Claims).(*dto.AuthClaims)

		path := c.Path()
		method := c.Method()
		decision := svc.acSvc.Decide(path, method, claims)
		if !decision.Classified {
			return c.Next()
		}

		ip, _ := c.Locals(shared.ClientIP).(string)
		if ip == "" {
			ip = c.IP()
		}
		userAgent, _ := c.Locals(shared.UserAgent).(string)

		var actor *string
		if claims != nil && claims.Subject != "" {
			actor = &claims.Subject
		}

		target := svc.acSvc.ResourceOwner(path, method)
		if target == "" && claims != nil {
			target = claims.Subject
		}
		var targetPtr *string
		if target != "" {
			targetPtr = &target
		}

		category := model.DataCategory(decision.DataCategory)

		if !decision.Allowed {
			services.RecordAccessDenied(decision.Reason)
			svc.auditSvc.LogDataAccess(actor, model.ActionAccessDenied, category, targetPtr, map[string]interface{}{
				"path":   path,
				"method": method,
				"reason": decision.Reason,
			}, ip, userAgent)

			return shared.NewAppError(decision.StatusCode, decision.Reason, nil)
		}

		start := time.Now()
		err := c.Next()

		details := map[string]interface{}{
			"path":          path,
			"method":        method,
			"status":        c.Response().StatusCode(),
			"processing_ms": time.Since(start).Milliseconds(),
		}
		if len(decision.Fields) > 0 {
			details["fields"] = decision.Fields
		}

		svc.auditSvc.LogDataAccess(actor, actionForRequest(path, method), category, targetPtr, details, ip, userAgent)

		return err
	}
}

func actionForRequest(path, method string) model.AuditAction {
	if strings.HasSuffix(path, "/data/export") {
		return model.ActionExport
	}

	switch method {
	case fiber.MethodPost:
		return model.ActionCreate
	case fiber.MethodPut, fiber.MethodPatch:
		return model.ActionUpdate
	case fiber.MethodDelete:
		return model.ActionDelete
	default:
		return model.ActionRead
	}
}
