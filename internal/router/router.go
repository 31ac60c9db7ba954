package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/tvtracker/internal/handler"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		discovery := api.Group("/discovery")
		discovery.GET("/status", h.DiscoveryStatus)
		discovery.POST("/skip", h.SkipPage)

		api.GET("/shows/:id/credits", h.ShowCredits)
		api.GET("/actors/:id/credits", h.ActorCredits)
	}
}
