// Package api exposes the owner-facing HTTP surface: sentinel lifecycle,
// activity history, spending stats and insight history.
package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentineld/internal/guard"
	"sentineld/internal/service"
	"sentineld/internal/storage"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	service   *service.Service
	sentinels storage.SentinelStore
	activity  storage.ActivityStore
	insights  storage.InsightStore
	guard     *guard.Guard
	logger    *log.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *service.Service, sentinels storage.SentinelStore, activity storage.ActivityStore, insights storage.InsightStore, g *guard.Guard, logger *log.Logger) *gin.Engine {
	if logger == nil {
		logger = log.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))

	h := &Handler{
		service:   svc,
		sentinels: sentinels,
		activity:  activity,
		insights:  insights,
		guard:     g,
		logger:    logger,
	}

	api := r.Group("/api/v1")
	{
		api.POST("/sentinels", h.CreateSentinel)
		api.GET("/sentinels/:id", h.GetSentinel)
		api.GET("/sentinels/owner/:owner_id", h.GetSentinelsByOwner)
		api.DELETE("/sentinels/:id", h.DeleteSentinel)

		api.POST("/sentinels/:id/start", h.StartSentinel)
		api.POST("/sentinels/:id/stop", h.StopSentinel)
		api.POST("/sentinels/:id/resume", h.ResumeSentinel)
		api.POST("/sentinels/:id/refresh", h.RefreshFunding)

		api.GET("/sentinels/:id/funding", h.GetFunding)
		api.GET("/sentinels/:id/activities", h.GetActivities)
		api.GET("/sentinels/:id/stats", h.GetSentinelStats)
		api.GET("/sentinels/:id/insights", h.GetInsights)

		api.GET("/owners/:owner_id/stats", h.GetOwnerStats)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
