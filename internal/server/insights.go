package server

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/runtime"
	"github.com/insightloop/insightloop/internal/store"
)

type InsightsHandler struct {
	Store   *store.Store
	Manager *interview.Manager
}

func (h *InsightsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("/:id/insight", h.get)
	g.POST("/:id/insight", h.retry)
}

func (h *InsightsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	rec, err := h.Store.GetInsightBySession(ctx, c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "insight not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// retry re-runs extraction for a concluded session that has no stored
// insight yet. If one already exists the stored record is returned.
func (h *InsightsHandler) retry(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	sess, err := h.Store.GetSessionForUser(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	project, err := h.Store.GetProjectByID(ctx, sess.ProjectID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	rec, err := h.Manager.RetryExtraction(ctx, project, sess)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrInvalidState):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, interview.ErrExtraction):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, rec)
}
