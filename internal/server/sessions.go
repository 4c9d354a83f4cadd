package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/runtime"
	"github.com/insightloop/insightloop/internal/store"
)

// SessionsHandler serves the respondent-facing interview flow (share-token
// scoped, no auth) and the owner-facing transcript view.
type SessionsHandler struct {
	Store   *store.Store
	Manager *interview.Manager
}

func (h *SessionsHandler) Register(api *echo.Group, secret []byte) {
	api.POST("/interviews/:token/sessions", h.start)
	api.POST("/interviews/:token/sessions/:id/replies", h.reply)

	authed := api.Group("/sessions")
	authed.Use(runtime.EchoAuthMiddleware(secret))
	authed.GET("/:id", h.transcript)
}

func (h *SessionsHandler) start(c echo.Context) error {
	ctx := c.Request().Context()
	project, err := h.Store.GetProjectByShareToken(ctx, c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "interview not found")
	}
	sess, turn, err := h.Manager.Start(ctx, project)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, StartSessionResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		Turn:      turn,
	})
}

func (h *SessionsHandler) reply(c echo.Context) error {
	ctx := c.Request().Context()
	project, err := h.Store.GetProjectByShareToken(ctx, c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "interview not found")
	}
	sess, err := h.Store.GetSession(ctx, c.Param("id"))
	if err != nil || sess.ProjectID != project.ID {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	var req SubmitReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text required")
	}

	res, err := h.Manager.SubmitReply(ctx, project, sess, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrInvalidState):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, interview.ErrTurnGeneration):
			// The respondent still gets a reply; the apology turn is not
			// persisted and the session stays open.
			c.Logger().Errorf("turn generation failed: %v", err)
		case errors.Is(err, interview.ErrExtraction):
			// Conclusion already happened; extraction can be retried later.
			c.Logger().Errorf("insight extraction failed: %v", err)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	status := sess.Status
	if res.Concluded {
		status = interview.SessionConcluded
	}
	return c.JSON(http.StatusOK, SubmitReplyResponse{
		Turn:      res.AgentTurn,
		Status:    status,
		Recovered: res.Recovered,
	})
}

func (h *SessionsHandler) transcript(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	sess, err := h.Store.GetSessionForUser(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	turns, err := h.Store.ListTurns(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if turns == nil {
		turns = []interview.Turn{}
	}
	return c.JSON(http.StatusOK, TranscriptResponse{Session: sess, Turns: turns})
}
