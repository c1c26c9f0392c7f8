package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

type LifecycleHandler struct {
	userSvc      UserServiceInterface
	lifecycleSvc LifecycleServiceInterface
}

func NewLifecycleHandler(userSvc UserServiceInterface, lifecycleSvc LifecycleServiceInterface) *LifecycleHandler {
	return &LifecycleHandler{userSvc: userSvc, lifecycleSvc: lifecycleSvc}
}

// @Summary Request deletion of own data
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param deletionRequest body dto.CreateDeletionRequest true "Deletion reason"
// @Success 202 {object} shared.Response{data=dto.DeletionRequestResponse}
// @Router /api/v1/me/deletion [post]
func (h *LifecycleHandler) RequestDeletion(c *fiber.Ctx) error {
	userID := localString(c, shared.UserID)
	if userID == "" {
		return shared.NewUnauthorizedError("")
	}

	var req dto.CreateDeletionRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	request, err := h.userSvc.DeleteUser(userID, req.Reason, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusAccepted, "Deletion request accepted", &dto.DeletionRequestResponse{Request: request})
}

// @Summary List deletion requests
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param limit query int false "Max requests"
// @Success 200 {object} shared.Response{data=dto.DeletionRequestListResponse}
// @Router /api/v1/admin/deletion-requests [get]
func (h *LifecycleHandler) ListDeletionRequests(c *fiber.Ctx) error {
	requests, err := h.lifecycleSvc.ListDeletionRequests(model.DeletionStatus(c.Query("status")), c.QueryInt("limit", 100))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, &dto.DeletionRequestListResponse{Requests: requests, Count: len(requests)})
}

// @Summary Process a deletion request
// @Description Execute a pending erasure request at the given level
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param request_id path string true "Request id"
// @Param level query string false "soft_delete, anonymize or hard_delete"
// @Success 200 {object} shared.Response{data=dto.DeletionRequestResponse}
// @Router /api/v1/admin/deletion-requests/{request_id}/process [post]
func (h *LifecycleHandler) ProcessDeletionRequest(c *fiber.Ctx) error {
	level := model.AnonymizationLevel(c.Query("level", string(model.LevelAnonymize)))

	request, err := h.lifecycleSvc.ProcessDeletionRequest(c.Params("request_id"), level, localString(c, shared.UserID))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, &dto.DeletionRequestResponse{Request: request})
}

// @Summary Run a retention sweep
// @Description Anonymize users past retention and prune expired sessions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} shared.Response{data=dto.RetentionSweepResult}
// @Router /api/v1/admin/retention/sweep [post]
func (h *LifecycleHandler) RunRetentionSweep(c *fiber.Ctx) error {
	result, err := h.lifecycleSvc.RunRetentionSweep()
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, result)
}
