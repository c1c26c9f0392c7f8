package middleware

import (
	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/services"
	"github.com/datashield-labs/warden_api/shared"
)

type AuthMiddleware struct {
	context.DefaultService

	jwtSvc *services.TokenService
}

const AUTH_MIDDLEWARE_SVC = "auth_middleware"

func (svc AuthMiddleware) Id() string {
	return AUTH_MIDDLEWARE_SVC
}

func (svc *AuthMiddleware) Configure(ctx *context.Context) error {
	svc.jwtSvc = ctx.Service(services.JWT_SVC).(*services.TokenService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthMiddleware) Start() error {
	return nil
}

// DecodeClaims resolves the bearer token when one is present. A missing
// header passes through without identity; the authorization layer
// decides whether that is acceptable. A present but invalid token is
// rejected outright.
func (svc *AuthMiddleware) DecodeClaims() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		token, err := svc.jwtSvc.ExtractTokenFromHeader(authHeader)
		if err != nil {
			return shared.NewUnauthorizedError(err.Error())
		}

		claims, err := svc.jwtSvc.VerifyJWTToken(token)
		if err != nil {
			return shared.NewUnauthorizedError("Invalid JWT token")
		}

		c.Locals(shared.Claims, claims)
		c.Locals(shared.UserID, claims.Subject)
		return c.Next()
	}
}

// RequiredAuth rejects requests that carry no verified identity.
func (svc *AuthMiddleware) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID, ok := c.Locals(shared.UserID).(string); !ok || userID == "" {
			return shared.NewUnauthorizedError("authentication required")
		}
		return c.Next()
	}
}
