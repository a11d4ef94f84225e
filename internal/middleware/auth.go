// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/config"
)

// AccessKeyMiddleware 管理 API 访问密钥鉴权
// 未配置 ACCESS_KEY 时放行所有请求；配置后 /api 路径要求
// x-api-key 请求头或 key 查询参数携带正确密钥，其余路径放行
func AccessKeyMiddleware(envCfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if envCfg.AccessKey == "" {
			c.Next()
			return
		}

		if !strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Next()
			return
		}

		key := c.GetHeader("x-api-key")
		if key == "" {
			key = c.Query("key")
		}

		if key != envCfg.AccessKey {
			c.AbortWithStatusJSON(401, gin.H{"error": "Unauthorized"})
			return
		}

		c.Next()
	}
}
