package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	sssoecho "github.com/pilab-dev/teams-collab/api/echo"
	sssogin "github.com/pilab-dev/teams-collab/api/gin"
	"github.com/pilab-dev/teams-collab/config"
	"github.com/pilab-dev/teams-collab/log"
)

// NewHTTPServer creates the tab-facing Gin server. gatherer backs /metrics.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *sssogin.API, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      NewRouter(cfg, appLogger, api, gatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter builds the Gin engine with the shared middleware chain.
func NewRouter(cfg *config.ServerConfig, appLogger log.Logger, api *sssogin.API, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(appLogger))
	router.Use(otelgin.Middleware(cfg.OtelServiceName))
	router.Use(sssogin.SecurityHeadersMiddleware())

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	api.RegisterRoutes(router)
	return router
}

func requestLogger(appLogger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 && c.Writer.Status() >= http.StatusInternalServerError {
			appLogger.Error(c.Request.Context(), c.Errors.String(), c.Errors.Last().Err, fields)
			return
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.Last().Error()
			appLogger.Warn(c.Request.Context(), "HTTP Request", fields)
			return
		}
		appLogger.Info(c.Request.Context(), "HTTP Request", fields)
	}
}

// NewBotServer creates the Echo server behind the bot messaging endpoint.
func NewBotServer(cfg *config.ServerConfig, appLogger log.Logger, bot *sssoecho.BotAPI) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			appLogger.Info(c.Request().Context(), "Bot Request", log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			return nil
		},
	}))
	bot.RegisterRoutes(e)

	return &http.Server{
		Addr:         ":" + cfg.BotPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
