package relationships

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

// Handler handles HTTP requests for relationships
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optionalInt(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperror.NewBadRequest(name + " must be an integer")
	}
	return &v, nil
}

func parseFilter(c echo.Context) (Filter, PageRequest, error) {
	f := Filter{
		SourceType:        EntityKind(c.QueryParam("sourceType")),
		SourceIDs:         splitList(c.QueryParam("sourceId")),
		TargetType:        EntityKind(c.QueryParam("targetType")),
		TargetIDs:         splitList(c.QueryParam("targetId")),
		RelationshipTypes: splitList(c.QueryParam("relationshipType")),
		Tags:              splitList(c.QueryParam("tags")),
	}

	var err error
	if f.MinStrength, err = optionalInt(c, "minStrength"); err != nil {
		return f, PageRequest{}, err
	}
	if f.MaxStrength, err = optionalInt(c, "maxStrength"); err != nil {
		return f, PageRequest{}, err
	}
	if raw := c.QueryParam("isActive"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, PageRequest{}, apperror.NewBadRequest("isActive must be a boolean")
		}
		f.IsActive = &b
	}

	var page PageRequest
	if p, err := optionalInt(c, "page"); err != nil {
		return f, page, err
	} else if p != nil {
		page.Page = *p
	}
	if l, err := optionalInt(c, "limit"); err != nil {
		return f, page, err
	} else if l != nil {
		page.Limit = *l
	}
	return f, page, nil
}

// FindMany handles GET /api/relationships
func (h *Handler) FindMany(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	f, page, err := parseFilter(c)
	if err != nil {
		return err
	}
	result, err := h.svc.FindMany(c.Request().Context(), t, f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FindOne handles GET /api/relationships/:id
func (h *Handler) FindOne(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	e, err := h.svc.FindOne(c.Request().Context(), t, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

// Create handles POST /api/relationships
func (h *Handler) Create(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var d Draft
	if err := c.Bind(&d); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	e, err := h.svc.Create(c.Request().Context(), t, d)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// Update handles PATCH /api/relationships/:id
func (h *Handler) Update(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	e, err := h.svc.Update(c.Request().Context(), t, c.Param("id"), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

// Delete handles DELETE /api/relationships/:id
func (h *Handler) Delete(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	if err := h.svc.SoftDelete(c.Request().Context(), t, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateFromMention handles POST /api/relationships/mentions
func (h *Handler) CreateFromMention(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var m Mention
	if err := c.Bind(&m); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	e, err := h.svc.CreateFromMention(c.Request().Context(), t, m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

type interactionRequest struct {
	Source           EntityRef `json:"source"`
	Target           EntityRef `json:"target"`
	RelationshipType string    `json:"relationshipType" validate:"required"`
}

// RecordInteraction handles POST /api/relationships/interactions
func (h *Handler) RecordInteraction(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	var req interactionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.IncrementInteraction(c.Request().Context(), t, req.Source, req.Target, req.RelationshipType); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ForEntity handles GET /api/relationships/entity/:type/:id
func (h *Handler) ForEntity(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	edges, err := h.svc.GetForEntity(c.Request().Context(), t, Ref(EntityKind(c.Param("type")), c.Param("id")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": edges})
}

// Suggestions handles GET /api/relationships/suggestions?entityType=&entityId=&targetType=
func (h *Handler) Suggestions(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Suggest(c.Request().Context(), t,
		Ref(EntityKind(c.QueryParam("entityType")), c.QueryParam("entityId")),
		EntityKind(c.QueryParam("targetType")),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}
