package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

type AuthHandler struct {
	authSvc AuthServiceInterface
}

func NewAuthHandler(authSvc AuthServiceInterface) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// @Summary Register a new user
// @Description Create a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param registerRequest body dto.RegisterRequest true "Registration details"
// @Success 201 {object} shared.Response{data=dto.RegisterResponse}
// @Router /api/v1/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	resp, err := h.authSvc.Register(&req, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "User registered successfully", resp)
}

// @Summary Login user
// @Description Authenticate user and return access token
// @Tags auth
// @Accept json
// @Produce json
// @Param loginRequest body dto.LoginRequest true "Login credentials"
// @Success 200 {object} shared.Response{data=dto.LoginResponse}
// @Router /api/v1/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	resp, err := h.authSvc.Login(&req, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Login successful", resp)
}

// @Summary Logout user
// @Description Revoke the current session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} shared.Response
// @Router /api/v1/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID := localString(c, shared.UserID)
	if userID == "" {
		return shared.NewUnauthorizedError("")
	}

	sessionID := ""
	if claims := authClaims(c); claims != nil {
		sessionID = claims.SessionID
	}

	if err := h.authSvc.Logout(userID, sessionID, clientIP(c), userAgent(c)); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Logged out", nil)
}

func clientIP(c *fiber.Ctx) string {
	if ip := localString(c, shared.ClientIP); ip != "" {
		return ip
	}
	return c.IP()
}

func userAgent(c *fiber.Ctx) string {
	if ua := localString(c, shared.UserAgent); ua != "" {
		return ua
	}
	return c.Get("User-Agent")
}

func localString(c *fiber.Ctx, key string) string {
	if v, ok := c.Locals(key).(string); ok {
		return v
	}
	return ""
}

func authClaims(c *fiber.Ctx) *dto.AuthClaims {
	if claims, ok := c.Locals(shared.Claims).(*dto.AuthClaims); ok {
		return claims
	}
	return nil
}
