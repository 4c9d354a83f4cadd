package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/runtime"
	"github.com/insightloop/insightloop/internal/store"
)

type ProjectsHandler struct {
	Store *store.Store
}

func (h *ProjectsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
}

func (h *ProjectsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListProjects(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []interview.Project{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProjectsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" || req.ProductIdea == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and product_idea required")
	}
	if req.Persona.Name == "" {
		req.Persona.Name = "Alex"
	}
	if req.Persona.Company == "" {
		req.Persona.Company = req.Title
	}
	p, err := h.Store.CreateProject(c.Request().Context(), interview.Project{
		UserID:      userID,
		Title:       req.Title,
		ProductIdea: req.ProductIdea,
		Persona: interview.Persona{
			Name:    req.Persona.Name,
			Company: req.Persona.Company,
		},
		GuideQuestions: req.GuideQuestions,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ProjectsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	p, err := h.Store.GetProjectByID(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	return c.JSON(http.StatusOK, p)
}
