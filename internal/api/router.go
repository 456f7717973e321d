package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/api/handlers"
	"github.com/vigil-ops/vigil-backend-go/internal/api/middleware"
	"github.com/vigil-ops/vigil-backend-go/internal/config"
	"github.com/vigil-ops/vigil-backend-go/internal/core/engine"
	"github.com/vigil-ops/vigil-backend-go/internal/websocket"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, eng *engine.Engine, logger *logrus.Logger, wsHub *websocket.Hub) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	h := handlers.NewHandlers(cfg, eng, wsHub, logger)

	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocketHandler(wsHub))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		metrics := api.Group("/metrics")
		{
			metrics.POST("", h.RegisterMetric)
			metrics.POST("/:name/points", h.RecordPoint)
			metrics.GET("/:name/points", h.QueryMetric)
			metrics.GET("/:name/latest", h.LatestValue)
		}

		alerts := api.Group("/alerts")
		{
			alerts.POST("", h.RegisterAlert)
			alerts.GET("", h.ListAlertDefinitions)
			alerts.DELETE("/:id", h.UnregisterAlert)
			alerts.GET("/active", h.ActiveAlerts)
			alerts.GET("/history", h.AlertHistory)
			alerts.GET("/statistics", h.AlertStatistics)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
			alerts.POST("/:id/tags", h.AddTags)
		}

		policies := api.Group("/escalation-policies")
		{
			policies.POST("", h.RegisterEscalationPolicy)
			policies.GET("", h.ListEscalationPolicies)
			policies.PUT("/default", h.SetDefaultEscalationPolicy)
		}
	}

	return router
}
