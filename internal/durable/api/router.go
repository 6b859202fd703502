package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/client"
	"github.com/kandev/durabletask/internal/durable/executorproxy"
)

// SetupRoutes wires the instance API onto router, per SPEC_FULL.md's route
// table. The worker stream is registered separately by SetupWorkerStream.
func SetupRoutes(router *gin.RouterGroup, c *client.Client, proxy *executorproxy.Proxy, log *logger.Logger) {
	handler := NewHandler(c, proxy, log)

	instances := router.Group("/instances")
	{
		instances.POST("", handler.ScheduleNew)
		instances.GET("", handler.Query)
		instances.GET("/:id", handler.GetInstance)
		instances.DELETE("/:id", handler.Purge)
		instances.POST("/:id/events", handler.RaiseEvent)
		instances.POST("/:id/terminate", handler.Terminate)
		instances.POST("/:id/suspend", handler.Suspend)
		instances.POST("/:id/resume", handler.Resume)
	}
}

// SetupWorkerStream registers the worker WebSocket upgrade endpoint.
// Kept separate from SetupRoutes since it's typically mounted outside the
// /api/v1 group (GET /ws/worker rather than under the REST prefix).
func SetupWorkerStream(router gin.IRoutes, proxy *executorproxy.Proxy, log *logger.Logger) {
	handler := NewHandler(nil, proxy, log)
	router.GET("/ws/worker", handler.WorkerStream)
}
