package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

type AuditHandler struct {
	auditSvc AuditServiceInterface
}

func NewAuditHandler(auditSvc AuditServiceInterface) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// @Summary Audit history for a user
// @Description Newest-first audit entries where the user is the data subject
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "User id"
// @Param start query string false "RFC3339 start"
// @Param end query string false "RFC3339 end"
// @Param limit query int false "Max entries"
// @Success 200 {object} shared.Response{data=dto.AuditHistoryResponse}
// @Router /api/v1/admin/audit-logs/{user_id} [get]
func (h *AuditHandler) History(c *fiber.Ctx) error {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		return err
	}

	resp, err := h.auditSvc.History(&dto.AuditHistoryRequest{
		TargetUserID: c.Params("user_id"),
		StartDate:    start,
		EndDate:      end,
		Limit:        c.QueryInt("limit", 100),
	})
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Audit summary
// @Description Aggregate audit activity by action, category and day
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param start query string false "RFC3339 start"
// @Param end query string false "RFC3339 end"
// @Success 200 {object} shared.Response{data=dto.AuditSummaryResponse}
// @Router /api/v1/admin/audit-summary [get]
func (h *AuditHandler) Summary(c *fiber.Ctx) error {
	end := time.Now().UTC()
	start := end.Add(-30 * 24 * time.Hour)

	if s, err := parseTimeQuery(c, "start"); err != nil {
		return err
	} else if s != nil {
		start = *s
	}
	if e, err := parseTimeQuery(c, "end"); err != nil {
		return err
	} else if e != nil {
		end = *e
	}

	resp, err := h.auditSvc.Summarize(start, end)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

func parseTimeQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid "+key+" timestamp")
	}
	return &t, nil
}
