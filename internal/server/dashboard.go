package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/runtime"
	"github.com/insightloop/insightloop/internal/store"
)

type DashboardHandler struct {
	Store *store.Store
}

func (h *DashboardHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.view)
}

// view aggregates every stored insight for the caller. A storage failure is
// a hard error rather than a partial dashboard.
func (h *DashboardHandler) view(c echo.Context) error {
	userID := c.Get("user_id").(string)
	records, err := h.Store.ListInsightsByUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Errorf("%w: %v", interview.ErrAggregation, err).Error())
	}
	return c.JSON(http.StatusOK, interview.BuildAggregateView(records))
}
