package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/handler"
	"github.com/jengzang/trackmap/internal/middleware"
)

// Handlers groups the route handlers
type Handlers struct {
	Points      *handler.PointHandler
	Density     *handler.DensityHandler
	Maintenance *handler.MaintenanceHandler
	Render      *handler.RenderHandler
}

// SetupRouter 设置路由
func SetupRouter(h Handlers, limiter *middleware.RateLimiter, jwtSecret string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "trackmap is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(jwtSecret)

	// API 路由组
	api := r.Group("/api/v1", middleware.RateLimit(limiter))
	{
		// 轨迹点
		points := api.Group("/points")
		{
			points.GET("", h.Points.GetPoints)
			points.GET("/time-range", h.Points.GetTimeRange)
			points.GET("/coords-range", h.Points.GetCoordsRange)
			points.POST("", auth, h.Points.IngestPoints)
			points.POST("/track", auth, h.Points.TrackPoint)
			points.DELETE("", auth, h.Points.DeletePoints)
		}

		// 数据来源
		sources := api.Group("/sources")
		{
			sources.GET("", h.Points.GetSources)
			sources.DELETE("/:source", auth, h.Points.DeleteSource)
		}

		// 密度网格
		density := api.Group("/density")
		{
			density.GET("/cells", h.Density.GetCells)
			density.POST("/recompute", auth, h.Maintenance.RecomputeDensity)
		}

		// 后台任务
		maintenance := api.Group("/maintenance")
		{
			maintenance.GET("", h.Maintenance.ListJobs)
			maintenance.POST("/backfill", auth, h.Maintenance.StartBackfill)
			maintenance.GET("/:name", h.Maintenance.GetJob)
			maintenance.DELETE("/:name", auth, h.Maintenance.CancelJob)
		}

		// 地图渲染
		api.GET("/render.png", h.Render.RenderPNG)
		api.GET("/render/layers", h.Render.GetLayers)
	}

	return r
}
