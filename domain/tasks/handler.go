package tasks

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

// Handler handles HTTP requests for tasks
type Handler struct {
	svc *Service
}

// NewHandler creates a new tasks handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewBadRequest(name + " must be an integer")
	}
	return v, nil
}

// List handles GET /api/tasks
func (h *Handler) List(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}

	params := ListParams{
		Status:    c.QueryParam("status"),
		ProjectID: c.QueryParam("projectId"),
	}
	if params.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	if params.Offset, err = intParam(c, "offset"); err != nil {
		return err
	}

	result, err := h.svc.List(c.Request().Context(), t, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Get handles GET /api/tasks/:id
func (h *Handler) Get(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	task, err := h.svc.Get(c.Request().Context(), t, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// Create handles POST /api/tasks
func (h *Handler) Create(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	task, err := h.svc.Create(c.Request().Context(), t, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

// ChangeProject handles PUT /api/tasks/:id/project
func (h *Handler) ChangeProject(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var req ChangeProjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	task, err := h.svc.ChangeProject(c.Request().Context(), t, c.Param("id"), req.ProjectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// AddAssignee handles POST /api/tasks/:id/assignees
func (h *Handler) AddAssignee(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var req AssigneeInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	edge, err := h.svc.AddAssignee(c.Request().Context(), t, c.Param("id"), req.UserID, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, edge)
}

// RemoveAssignee handles DELETE /api/tasks/:id/assignees/:userId
func (h *Handler) RemoveAssignee(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveAssignee(c.Request().Context(), t, c.Param("id"), c.Param("userId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Relationships handles GET /api/tasks/:id/relationships
func (h *Handler) Relationships(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	edges, err := h.svc.GetEntityRelationships(c.Request().Context(), t, relationships.KindTask, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": edges})
}
