package metrics

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultRetentionDays 历史数据默认保留天数
const DefaultRetentionDays = 90

// Coordinator 存储协调器：在窗口存储和历史存储之上提供统一读写面
// 写入策略不对称：历史存储尽力而为（失败只记日志），窗口写入是硬性的
// windowMu 串行化窗口的读-改-写循环，避免并发写入丢失记录
type Coordinator struct {
	windowMu   sync.Mutex
	window     *WindowStore
	historical HistoricalStore

	retMu         sync.Mutex
	retentionDays int
}

// NewCoordinator 创建存储协调器（保留天数 <= 0 时取默认值）
func NewCoordinator(window *WindowStore, historical HistoricalStore, retentionDays int) *Coordinator {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Coordinator{
		window:        window,
		historical:    historical,
		retentionDays: retentionDays,
	}
}

// SaveMetric 写入一条记录
// 先尝试历史存储：失败被吞掉（丢一条历史可以接受，拒绝一条合法测量不行）
// 随后无论历史结果如何都更新窗口：窗口写入失败才向调用方报错
func (c *Coordinator) SaveMetric(record CallRecord) error {
	if err := c.historical.SaveMetric(record); err != nil {
		log.Printf("[Metrics-Save] 警告: 历史存储写入失败（已降级为仅窗口）: %v", err)
	}

	c.windowMu.Lock()
	defer c.windowMu.Unlock()

	records := c.window.Load()
	records = append(records, record)
	return c.window.Save(records)
}

// GetRecentMetrics 从窗口读取最近的 limit 条记录（按存储顺序，最新在后）
func (c *Coordinator) GetRecentMetrics(limit int) []CallRecord {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()

	records := c.window.Load()
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records
}

// GetMetricsInRange 按时间范围查询，只走历史存储
// 窗口是定长尾部而不是索引，按设计不支持范围查询
func (c *Coordinator) GetMetricsInRange(startMs, endMs int64) ([]CallRecord, error) {
	return c.historical.GetMetricsInRange(startMs, endMs)
}

// GetMetricsByProvider 按服务商查询，只走历史存储
func (c *Coordinator) GetMetricsByProvider(provider string, limit int) ([]CallRecord, error) {
	return c.historical.GetMetricsByProvider(provider, limit)
}

// GetAllMetrics 全量查询，只走历史存储
func (c *Coordinator) GetAllMetrics() ([]CallRecord, error) {
	return c.historical.GetAllMetrics()
}

// GetCount 历史记录总数
func (c *Coordinator) GetCount() (int64, error) {
	return c.historical.GetCount()
}

// RetentionDays 当前保留天数
func (c *Coordinator) RetentionDays() int {
	c.retMu.Lock()
	defer c.retMu.Unlock()
	return c.retentionDays
}

// SetRetentionDays 更新保留天数（<= 0 时取默认值），下次清理生效
func (c *Coordinator) SetRetentionDays(days int) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	c.retMu.Lock()
	c.retentionDays = days
	c.retMu.Unlock()
}

// CleanupOldData 按保留边界清理历史数据（now - retentionDays）
// 可重复调用，无可删数据时返回 0 不报错
func (c *Coordinator) CleanupOldData() (int64, error) {
	days := c.RetentionDays()
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	deleted, err := c.historical.CleanupOldMetrics(cutoff)
	if err != nil {
		return 0, fmt.Errorf("清理过期历史记录失败: %w", err)
	}
	if deleted > 0 {
		log.Printf("[Metrics-Cleanup] 已清理 %d 条过期记录（超过 %d 天）", deleted, days)
	}
	return deleted, nil
}

// ClearAll 清空两级存储，等两者都完成后统一返回结果
func (c *Coordinator) ClearAll() error {
	histErr := c.historical.Clear()

	c.windowMu.Lock()
	winErr := c.window.Clear()
	c.windowMu.Unlock()

	if histErr != nil && winErr != nil {
		return fmt.Errorf("清空历史存储失败: %v; 清空窗口存储失败: %v", histErr, winErr)
	}
	if histErr != nil {
		return fmt.Errorf("清空历史存储失败: %w", histErr)
	}
	if winErr != nil {
		return fmt.Errorf("清空窗口存储失败: %w", winErr)
	}
	return nil
}
