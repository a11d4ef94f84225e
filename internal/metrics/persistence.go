package metrics

// HistoricalStore 历史存储接口
// 协调器通过该接口访问持久化归档，便于测试时注入故障实现
type HistoricalStore interface {
	// SaveMetric 写入单条记录（按 id upsert）
	SaveMetric(record CallRecord) error

	// SaveMetricsBatch 在单个事务内写入多条记录
	SaveMetricsBatch(records []CallRecord) error

	// GetMetricsInRange 按时间范围查询（闭区间，毫秒时间戳）
	GetMetricsInRange(startMs, endMs int64) ([]CallRecord, error)

	// GetMetricsByProvider 按服务商查询，limit > 0 时限制条数
	GetMetricsByProvider(provider string, limit int) ([]CallRecord, error)

	// GetAllMetrics 全表扫描（代价高，仅用于小数据集或导出）
	GetAllMetrics() ([]CallRecord, error)

	// GetCount 获取记录总数
	GetCount() (int64, error)

	// CleanupOldMetrics 删除早于边界的记录，返回删除条数
	CleanupOldMetrics(olderThanMs int64) (int64, error)

	// Clear 删除所有记录
	Clear() error

	// Close 释放底层连接（后续操作透明重新初始化）
	Close() error
}
