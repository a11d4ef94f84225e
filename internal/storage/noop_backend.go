package storage

// NoopBackend 空操作后端：写入被丢弃，读取始终为空
// 用于无持久化需求的部署（窗口数据仅存活于进程内调用链）
type NoopBackend struct{}

// NewNoopBackend 创建空操作后端
func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (n *NoopBackend) Get(key string) ([]byte, error) { return nil, ErrNotFound }

func (n *NoopBackend) Set(key string, value []byte) error { return nil }

func (n *NoopBackend) Delete(key string) error { return nil }

func (n *NoopBackend) Keys(prefix string) ([]string, error) { return nil, nil }
