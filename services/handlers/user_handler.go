package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

type UserHandler struct {
	userSvc UserServiceInterface
}

func NewUserHandler(userSvc UserServiceInterface) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// @Summary Get current user
// @Description Return the authenticated user with profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} shared.Response{data=dto.UserResponse}
// @Router /api/v1/me [get]
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID := localString(c, shared.UserID)
	if userID == "" {
		return shared.NewUnauthorizedError("")
	}
	return h.getUser(c, userID)
}

// @Summary Update current user
// @Description Update the authenticated user and profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param updateRequest body dto.UpdateUserRequest true "Fields to update"
// @Success 200 {object} shared.Response{data=dto.UserResponse}
// @Router /api/v1/me [put]
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	userID := localString(c, shared.UserID)
	if userID == "" {
		return shared.NewUnauthorizedError("")
	}
	return h.updateUser(c, userID)
}

// @Summary Get user by id
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User id"
// @Success 200 {object} shared.Response{data=dto.UserResponse}
// @Router /api/v1/users/{user_id} [get]
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	return h.getUser(c, c.Params("user_id"))
}

// @Summary Update user by id
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User id"
// @Param updateRequest body dto.UpdateUserRequest true "Fields to update"
// @Success 200 {object} shared.Response{data=dto.UserResponse}
// @Router /api/v1/users/{user_id} [put]
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	return h.updateUser(c, c.Params("user_id"))
}

// @Summary Delete user by id
// @Description Files a deletion request; erasure happens asynchronously
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User id"
// @Success 202 {object} shared.Response{data=dto.DeletionRequestResponse}
// @Router /api/v1/users/{user_id} [delete]
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	request, err := h.userSvc.DeleteUser(c.Params("user_id"), "api deletion", clientIP(c), userAgent(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusAccepted, "Deletion request accepted", &dto.DeletionRequestResponse{Request: request})
}

// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Username search"
// @Success 200 {object} shared.Response{data=dto.UserListResponse}
// @Router /api/v1/admin/users [get]
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	search := c.Query("search")

	resp, err := h.userSvc.ListUsers(page, limit, search)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Export personal data
// @Description Bundle everything held about the authenticated user into a downloadable archive
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} shared.Response{data=dto.DataExportResponse}
// @Router /api/v1/data/export [post]
func (h *UserHandler) ExportData(c *fiber.Ctx) error {
	userID := localString(c, shared.UserID)
	if userID == "" {
		return shared.NewUnauthorizedError("")
	}

	resp, err := h.userSvc.ExportUserData(userID, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

func (h *UserHandler) getUser(c *fiber.Ctx, userID string) error {
	resp, err := h.userSvc.GetUser(userID)
	if err != nil {
		return err
	}
	return shared.ResponseOK(c, resp)
}

func (h *UserHandler) updateUser(c *fiber.Ctx, userID string) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	resp, err := h.userSvc.UpdateUser(userID, &req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}
