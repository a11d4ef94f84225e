// Package handlers 提供 HTTP 处理器
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/metrics"
)

// RecordMetric 记录一次请求指标
// POST /api/metrics
func RecordMetric(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input metrics.CallRecord
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body"})
			return
		}

		record, err := service.RecordMetric(input)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		c.JSON(200, record)
	}
}

// GetRecentMetrics 获取最近窗口记录
// GET /api/metrics/recent?limit=20
func GetRecentMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(400, gin.H{"error": "Invalid limit parameter"})
				return
			}
			limit = n
		}

		c.JSON(200, gin.H{"metrics": service.GetRecentMetrics(limit)})
	}
}

// GetAggregatedMetrics 获取聚合报告
// GET /api/metrics/aggregated?range={hour|today|week|month|year}
// 或 GET /api/metrics/aggregated?start=<ms>&end=<ms>
func GetAggregatedMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		startStr := c.Query("start")
		endStr := c.Query("end")

		// 显式时间界限优先于符号化范围
		if startStr != "" || endStr != "" {
			start, err1 := strconv.ParseInt(startStr, 10, 64)
			end, err2 := strconv.ParseInt(endStr, 10, 64)
			if err1 != nil || err2 != nil || start > end {
				c.JSON(400, gin.H{"error": "Invalid start/end parameters"})
				return
			}

			report, err := service.GetAggregatedMetricsBetween(start, end)
			if err != nil {
				c.JSON(500, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, report)
			return
		}

		rangeStr := c.DefaultQuery("range", "today")
		report, err := service.GetAggregatedMetrics(metrics.TimeRange(rangeStr))
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid range parameter. Use: hour, today, week, month, or year"})
			return
		}

		c.JSON(200, report)
	}
}

// ExportMetrics 导出全部历史记录
// GET /api/metrics/export
func ExportMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := service.ExportAllMetrics()
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"metrics": records, "count": len(records)})
	}
}

// GetMetricsCount 获取历史记录总数
// GET /api/metrics/count
func GetMetricsCount(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := service.GetHistoricalCount()
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"count": count})
	}
}

// CleanupMetrics 执行保留策略清理
// POST /api/metrics/cleanup
func CleanupMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := service.CleanupOldMetrics()
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"success": true, "deleted": deleted})
	}
}

// ClearMetrics 清空所有指标数据
// DELETE /api/metrics
func ClearMetrics(service *metrics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.ClearAll(); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"success": true})
	}
}
