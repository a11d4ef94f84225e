package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ThomasJButler/ModelViz-sub002/internal/storage"
)

const (
	// MaxWindowEntries 窗口保留的最近记录数上限
	MaxWindowEntries = 100

	// maxWindowBytes 窗口序列化体积安全阈值（超过后降级为精简投影）
	maxWindowBytes = 2 * 1024 * 1024

	// quotaRetryEntries 配额不足时重试写入的记录数
	quotaRetryEntries = 10

	windowKey       = "recent_metrics"
	windowBackupKey = "recent_metrics_backup"

	// disposableCachePrefix 配额压力下可直接清除的缓存键前缀
	disposableCachePrefix = "cache_"
)

// windowSlimFields 精简投影保留的字段（牺牲完整性换取可用性）
var windowSlimFields = []string{
	"id", "timestamp", "provider", "model",
	"latencyMs", "tokensUsed", "status", "estimatedCost",
}

// WindowStore 最近窗口存储：保存最近 MaxWindowEntries 条记录
// 读取快速、容忍丢失，不依赖历史存储的可用性
type WindowStore struct {
	backend storage.Backend
}

// NewWindowStore 创建窗口存储
func NewWindowStore(backend storage.Backend) *WindowStore {
	return &WindowStore{backend: backend}
}

// Save 用 records 替换窗口内容（截断到最后 MaxWindowEntries 条）
// 序列化体积超过阈值时降级为精简投影；介质配额不足时清理缓存键并用最后
// quotaRetryEntries 条重试，二次失败才向调用方报错
func (w *WindowStore) Save(records []CallRecord) error {
	if len(records) > MaxWindowEntries {
		records = records[len(records)-MaxWindowEntries:]
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("序列化窗口数据失败: %w", err)
	}

	// 无条件写备份副本（降级前的完整数据）
	if err := w.backend.Set(windowBackupKey, payload); err != nil {
		log.Printf("[Window-Backup] 警告: 写入窗口备份失败: %v", err)
	}

	// 体积超限：降级为精简投影
	if len(payload) > maxWindowBytes {
		reduced := reduceWindowPayload(payload)
		log.Printf("[Window-Reduce] 窗口数据 %d 字节超过阈值，降级为精简投影（%d 字节）",
			len(payload), len(reduced))
		payload = reduced
	}

	err = w.backend.Set(windowKey, payload)
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		return err
	}

	// 配额不足：先清理可丢弃的缓存键，再用最后 quotaRetryEntries 条重试
	w.purgeDisposableKeys()

	retry := records
	if len(retry) > quotaRetryEntries {
		retry = retry[len(retry)-quotaRetryEntries:]
	}
	retryPayload, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("序列化重试窗口数据失败: %w", err)
	}

	if err := w.backend.Set(windowKey, retryPayload); err != nil {
		// 二次失败是唯一向上暴露丢失的情形
		return fmt.Errorf("窗口写入重试失败: %w", err)
	}
	log.Printf("[Window-Quota] 配额不足，窗口已缩减为最近 %d 条记录", len(retry))
	return nil
}

// Load 读取窗口记录：主键不可用时回退到备份副本，损坏数据按空处理
// 该方法永不返回错误
func (w *WindowStore) Load() []CallRecord {
	if records, ok := w.loadKey(windowKey); ok {
		return records
	}
	if records, ok := w.loadKey(windowBackupKey); ok {
		return records
	}
	return []CallRecord{}
}

// loadKey 读取并解析单个键，任何失败都按"无数据"处理
func (w *WindowStore) loadKey(key string) ([]CallRecord, bool) {
	data, err := w.backend.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[Window-Load] 警告: 读取键 %s 失败: %v", key, err)
		}
		return nil, false
	}

	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		log.Printf("[Window-Load] 警告: 键 %s 的数据已损坏，按空窗口处理", key)
		return nil, false
	}

	var records []CallRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("[Window-Load] 警告: 键 %s 反序列化失败，按空窗口处理: %v", key, err)
		return nil, false
	}
	return records, true
}

// Clear 删除窗口主键和备份键
func (w *WindowStore) Clear() error {
	if err := w.backend.Delete(windowKey); err != nil {
		return err
	}
	return w.backend.Delete(windowBackupKey)
}

// purgeDisposableKeys 清除所有可丢弃的缓存键（按前缀匹配）
func (w *WindowStore) purgeDisposableKeys() {
	keys, err := w.backend.Keys(disposableCachePrefix)
	if err != nil {
		log.Printf("[Window-Quota] 警告: 枚举缓存键失败: %v", err)
		return
	}
	for _, key := range keys {
		if err := w.backend.Delete(key); err != nil {
			log.Printf("[Window-Quota] 警告: 删除缓存键 %s 失败: %v", key, err)
		}
	}
	if len(keys) > 0 {
		log.Printf("[Window-Quota] 已清除 %d 个可丢弃缓存键", len(keys))
	}
}

// reduceWindowPayload 将完整窗口 JSON 数组裁剪为仅含关键字段的精简投影
func reduceWindowPayload(payload []byte) []byte {
	reduced := []byte("[]")
	gjson.ParseBytes(payload).ForEach(func(_, record gjson.Result) bool {
		slim := "{}"
		for _, field := range windowSlimFields {
			if v := record.Get(field); v.Exists() {
				slim, _ = sjson.Set(slim, field, v.Value())
			}
		}
		reduced, _ = sjson.SetRawBytes(reduced, "-1", []byte(slim))
		return true
	})
	return reduced
}
