package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/metrics"
)

// MetricsEvents 指标变更通知流（SSE）
// GET /api/metrics/events
// 每次成功写入后推送一条无负载的 "changed" 事件，前端收到后自行重新拉取
func MetricsEvents(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ch := service.Subscribe()
		defer service.Unsubscribe(id)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		// 先发一条就绪事件，让客户端确认连接建立
		c.SSEvent("ready", "ok")
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case _, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("changed", "metrics")
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
