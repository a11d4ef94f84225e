package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend 基于目录的键值存储：每个键对应一个文件
// 通过 maxBytes 模拟介质容量配额（0 表示不限制）
type FileBackend struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
}

// NewFileBackend 创建文件存储后端
func NewFileBackend(dir string, maxBytes int64) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileBackend{dir: dir, maxBytes: maxBytes}, nil
}

// keyPath 将键映射为文件路径（键中的路径分隔符替换为下划线，避免逃逸出目录）
func (f *FileBackend) keyPath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}

// Get 读取键对应的值
func (f *FileBackend) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.keyPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set 写入键值，写入后总占用超过 maxBytes 时拒绝并返回 ErrQuotaExceeded
func (f *FileBackend) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxBytes > 0 {
		used, err := f.usedBytesExcept(f.keyPath(key))
		if err != nil {
			return err
		}
		if used+int64(len(value)) > f.maxBytes {
			return ErrQuotaExceeded
		}
	}

	// 先写临时文件再重命名，避免写一半被读到
	path := f.keyPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete 删除键
func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.keyPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Keys 列出指定前缀的所有键
func (f *FileBackend) Keys(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// usedBytesExcept 统计目录当前占用（排除即将被覆盖的文件）
func (f *FileBackend) usedBytesExcept(exclude string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Join(f.dir, e.Name()) == exclude {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
