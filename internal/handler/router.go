package handler

import (
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

func NewRouter(h *Handler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestContext(log), metrics.Instrument())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		orders := v1.Group("/orders/:id/awb")
		orders.POST("", h.GenerateAWB)
		orders.DELETE("", h.DeleteAWB)
		orders.GET("/label", h.DownloadLabel)
		orders.POST("/sync", h.SyncStatus)
		orders.POST("/restore", h.Restore)

		v1.POST("/awb/bulk", h.BulkGenerate)
		v1.POST("/tariff", h.Tariff)
		v1.POST("/service-check", h.CheckService)
		v1.GET("/health/report", h.HealthReport)

		maintenance := v1.Group("/maintenance")
		maintenance.POST("/orders/:id/reset-markers", h.ResetMarkers)
		maintenance.POST("/sweep/deleted", h.SweepDeleted)
	}
	return r
}

// requestContext puts the logger and a request id into the request context.
func requestContext(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := logger.WithRequestID(logger.WithLogger(c.Request.Context(), log), id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if len(c.Errors) > 0 {
			log.Warn(ctx, "request finished with errors", zap.String("errors", c.Errors.String()))
		}
	}
}
