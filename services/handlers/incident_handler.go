package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

type IncidentHandler struct {
	incidentSvc IncidentServiceInterface
}

func NewIncidentHandler(incidentSvc IncidentServiceInterface) *IncidentHandler {
	return &IncidentHandler{incidentSvc: incidentSvc}
}

// @Summary Report a security incident
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param incident body dto.CreateIncidentRequest true "Incident details"
// @Success 201 {object} shared.Response{data=dto.IncidentResponse}
// @Router /api/v1/admin/incidents [post]
func (h *IncidentHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	incident, err := h.incidentSvc.CreateIncident(&req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Incident created", &dto.IncidentResponse{Incident: incident})
}

// @Summary List security incidents
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max incidents"
// @Success 200 {object} shared.Response{data=dto.IncidentListResponse}
// @Router /api/v1/admin/incidents [get]
func (h *IncidentHandler) List(c *fiber.Ctx) error {
	incidents, err := h.incidentSvc.ListIncidents(c.QueryInt("limit", 100))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, &dto.IncidentListResponse{Incidents: incidents, Count: len(incidents)})
}

// @Summary Get a security incident
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param incident_id path string true "Incident id"
// @Success 200 {object} shared.Response{data=dto.IncidentResponse}
// @Router /api/v1/admin/incidents/{incident_id} [get]
func (h *IncidentHandler) Get(c *fiber.Ctx) error {
	incident, err := h.incidentSvc.GetIncident(c.Params("incident_id"))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, &dto.IncidentResponse{Incident: incident})
}

// @Summary Update incident status
// @Description Move an incident forward through its lifecycle
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param incident_id path string true "Incident id"
// @Param statusRequest body dto.UpdateIncidentStatusRequest true "New status"
// @Success 200 {object} shared.Response{data=dto.IncidentResponse}
// @Router /api/v1/admin/incidents/{incident_id}/status [put]
func (h *IncidentHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateIncidentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	incident, err := h.incidentSvc.UpdateStatus(c.Params("incident_id"), &req, localString(c, shared.UserID))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, &dto.IncidentResponse{Incident: incident})
}

// @Summary Incident summary
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param start query string false "RFC3339 start"
// @Param end query string false "RFC3339 end"
// @Success 200 {object} shared.Response{data=dto.IncidentSummaryResponse}
// @Router /api/v1/admin/incident-summary [get]
func (h *IncidentHandler) Summary(c *fiber.Ctx) error {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		return err
	}

	resp, err := h.incidentSvc.Summary(start, end)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}
