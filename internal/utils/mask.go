package utils

// MaskAPIKey 脱敏 API Key / 访问密钥（用于日志输出）
// 保留前 4 位和后 4 位，中间用 ... 代替；过短的 key 全部打码
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
