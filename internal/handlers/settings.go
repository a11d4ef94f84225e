// Package handlers 提供 HTTP 处理器
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/config"
)

// GetSettings 获取运行时设置
// GET /api/settings
func GetSettings(settingsMgr *config.SettingsManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, settingsMgr.GetSettings())
	}
}

// UpdateSettings 更新运行时设置并写回设置文件
// PUT /api/settings
func UpdateSettings(settingsMgr *config.SettingsManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req config.Settings
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body"})
			return
		}

		if err := settingsMgr.UpdateSettings(req); err != nil {
			c.JSON(500, gin.H{"error": "Failed to save settings"})
			return
		}

		// 非法值在更新时被钳制，返回实际生效的设置
		c.JSON(200, gin.H{
			"success":  true,
			"settings": settingsMgr.GetSettings(),
		})
	}
}
