package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/insightloop/insightloop/config"
	"github.com/insightloop/insightloop/internal/interview"
	"github.com/insightloop/insightloop/internal/llm"
	"github.com/insightloop/insightloop/internal/lock"
	"github.com/insightloop/insightloop/internal/runtime"
	"github.com/insightloop/insightloop/internal/store"
	"github.com/insightloop/insightloop/internal/telemetry"
)

// Run wires the full service and serves the HTTP API.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	if err := cfg.Providers.OpenAI.Validate(); err != nil {
		return err
	}
	gen, err := llm.NewClient(cfg.Providers.OpenAI)
	if err != nil {
		return err
	}

	// conclusion lock; the status compare-and-swap still protects when
	// redis is not configured
	var locker interview.Locker
	if cfg.Databases.Redis.Host != "" && cfg.Databases.Redis.Port != "" {
		rl, err := lock.NewRedisLocker(ctx, cfg.Databases.Redis)
		if err != nil {
			return err
		}
		locker = rl
	} else {
		baseLogger.Printf("redis not configured; conclusion lock disabled")
	}

	tele := telemetry.New(prometheus.DefaultRegisterer)
	oa := cfg.Providers.OpenAI
	policy := interview.NewTurnPolicy(gen, oa.Temperature, oa.MaxTokens,
		cfg.Interview.HistoryWindow, cfg.Interview.ClosingPhrase)
	extractor := interview.NewExtractor(gen, oa.ExtractTemperature, oa.MaxTokens, nil)
	mgr := interview.NewManager(st, policy, extractor, locker, tele,
		log.New(log.Writer(), "[INTERVIEW] ", log.LstdFlags),
		cfg.Interview.MaxRespondentTurns, cfg.Interview.LockTTL)

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))
	api.GET("/me", auth.me, runtime.EchoAuthMiddleware(auth.Secret))

	ph := &ProjectsHandler{Store: st}
	ph.Register(api.Group("/projects"), auth.Secret)

	sh := &SessionsHandler{Store: st, Manager: mgr}
	sh.Register(api, auth.Secret)

	ih := &InsightsHandler{Store: st, Manager: mgr}
	ih.Register(api.Group("/sessions"), auth.Secret)

	dh := &DashboardHandler{Store: st}
	dh.Register(api.Group("/dashboard"), auth.Secret)

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":10030"
	}
	if addr[0] != ':' && !hasHost(addr) {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func hasHost(addr string) bool {
	for _, r := range addr {
		if r == ':' {
			return true
		}
	}
	return false
}
