// Package storage 提供窗口存储的底层键值介质抽象
package storage

import "errors"

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded 写入超出介质容量配额
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Backend 键值存储后端接口
// 窗口存储通过该接口读写，具体介质在构造时注入（文件 / no-op）
type Backend interface {
	// Get 读取键对应的值；键不存在时返回 ErrNotFound
	Get(key string) ([]byte, error)

	// Set 写入键值；超出容量配额时返回 ErrQuotaExceeded
	Set(key string, value []byte) error

	// Delete 删除键（键不存在时静默成功）
	Delete(key string) error

	// Keys 列出指定前缀的所有键
	Keys(prefix string) ([]string, error)
}
