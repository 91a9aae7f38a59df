// Package status exposes the agent's runtime state to the dashboard shell
// over a small local HTTP API: push connectivity for the degraded-mode
// indicator, job state for inline result panels, and the toast list.
package status

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carebridge/cds-agent/internal/dashboard"
	"github.com/carebridge/cds-agent/internal/domain/inference"
	"github.com/carebridge/cds-agent/internal/platform/session"
)

// Handler serves runtime state over HTTP.
type Handler struct {
	runtime *dashboard.Runtime
	sess    *session.Manager
}

// NewHandler creates a Handler bound to the given runtime and session.
func NewHandler(rt *dashboard.Runtime, sess *session.Manager) *Handler {
	return &Handler{runtime: rt, sess: sess}
}

// RegisterRoutes binds all status routes to the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/connections", h.Connections)
	g.GET("/jobs", h.Jobs)
	g.GET("/jobs/:id", h.Job)
	g.POST("/jobs", h.SubmitJob)
	g.GET("/notifications", h.Notifications)
	g.DELETE("/notifications/:id", h.DismissNotification)
	g.DELETE("/notifications", h.ClearNotifications)
	g.PUT("/session/token", h.UpdateToken)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "0.1.0",
	})
}

// Connections handles GET /connections.
func (h *Handler) Connections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connected": h.runtime.Connectivity(),
		"polling":   h.runtime.Jobs().Polling(),
	})
}

// Jobs handles GET /jobs. With ?active=true only non-terminal jobs are
// returned.
func (h *Handler) Jobs(c echo.Context) error {
	var jobs []inference.Job
	if c.QueryParam("active") == "true" {
		jobs = h.runtime.Jobs().ActiveJobs()
	} else {
		jobs = h.runtime.Jobs().Jobs()
	}
	if jobs == nil {
		jobs = []inference.Job{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  jobs,
		"total": len(jobs),
	})
}

// Job handles GET /jobs/:id.
func (h *Handler) Job(c echo.Context) error {
	job, ok := h.runtime.Jobs().Job(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

// SubmitJob handles POST /jobs. The request body names the model and its
// parameters; the response is the job as created (cached submissions come
// back already terminal).
func (h *Handler) SubmitJob(c echo.Context) error {
	var req struct {
		ModelType string                 `json:"model_type"`
		Params    map[string]interface{} `json:"params"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ModelType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model_type is required")
	}

	job, err := h.runtime.Jobs().Submit(c.Request().Context(), req.ModelType, req.Params)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "submission failed")
	}
	return c.JSON(http.StatusCreated, job)
}

// Notifications handles GET /notifications.
func (h *Handler) Notifications(c echo.Context) error {
	items := h.runtime.Queue().Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

// DismissNotification handles DELETE /notifications/:id.
func (h *Handler) DismissNotification(c echo.Context) error {
	h.runtime.Queue().Remove(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// ClearNotifications handles DELETE /notifications.
func (h *Handler) ClearNotifications(c echo.Context) error {
	h.runtime.Queue().Clear()
	return c.NoContent(http.StatusNoContent)
}

// UpdateToken handles PUT /session/token. The shell calls this after a
// re-login; the session manager fans the new token out to every consumer.
func (h *Handler) UpdateToken(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	h.sess.SetToken(req.Token)
	return c.NoContent(http.StatusNoContent)
}
