package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/metrics"
)

// GetProviderMetrics 获取指定服务商的历史记录（最新在前）
// GET /api/metrics/provider/:provider?limit=100
func GetProviderMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		if provider == "" {
			c.JSON(400, gin.H{"error": "Provider is required"})
			return
		}

		limit := 100
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(400, gin.H{"error": "Invalid limit parameter"})
				return
			}
			limit = n
		}

		records, err := service.GetMetricsByProvider(provider, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, gin.H{"provider": provider, "metrics": records, "count": len(records)})
	}
}
