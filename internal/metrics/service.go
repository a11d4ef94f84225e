package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ThomasJButler/ModelViz-sub002/internal/utils"
)

// Service 指标门面：进程内唯一入口，启动时构造一次并以句柄传递
// 记录写入后向所有订阅者发送无负载的变更通知，观察者自行重新拉取
type Service struct {
	coordinator *Coordinator

	subMu       sync.Mutex
	subscribers map[int]chan struct{}
	nextSubID   int
	closed      bool
}

// NewService 创建指标门面
func NewService(coordinator *Coordinator) *Service {
	return &Service{
		coordinator: coordinator,
		subscribers: make(map[int]chan struct{}),
	}
}

// RecordMetric 记录一次请求：分配 id、补齐时间戳、校验并写入两级存储
// 历史存储失败在协调器层被吞掉；窗口写入失败向调用方报错
// 变更通知永不失败（非阻塞发送，慢订阅者丢通知）
func (s *Service) RecordMetric(input CallRecord) (CallRecord, error) {
	record, err := s.sanitize(input)
	if err != nil {
		return CallRecord{}, err
	}

	if err := s.coordinator.SaveMetric(record); err != nil {
		return CallRecord{}, err
	}

	s.notify()
	return record, nil
}

// sanitize 校验并补全输入记录
func (s *Service) sanitize(input CallRecord) (CallRecord, error) {
	record := input

	if record.Provider == "" {
		return CallRecord{}, fmt.Errorf("provider 不能为空")
	}
	if record.Model == "" {
		return CallRecord{}, fmt.Errorf("model 不能为空")
	}

	switch record.Status {
	case StatusSuccess, StatusError:
	case "":
		// 未指定状态时按是否携带错误信息推断
		if record.ErrorMessage != "" {
			record.Status = StatusError
		} else {
			record.Status = StatusSuccess
		}
	default:
		return CallRecord{}, fmt.Errorf("无效的 status: %s", record.Status)
	}

	switch record.InputFormat {
	case InputFormatJSON, InputFormatText, InputFormatCode:
	default:
		record.InputFormat = InputFormatText
	}

	// id 与时间戳由记录方分配
	record.ID = uuid.NewString()
	if record.Timestamp <= 0 {
		record.Timestamp = time.Now().UnixMilli()
	}

	// 负值钳制为 0
	if record.LatencyMs < 0 {
		record.LatencyMs = 0
	}
	if record.TokensUsed < 0 {
		record.TokensUsed = 0
	}
	if record.PromptTokens < 0 {
		record.PromptTokens = 0
	}
	if record.CompletionTokens < 0 {
		record.CompletionTokens = 0
	}
	if record.EstimatedCost < 0 {
		record.EstimatedCost = 0
	}
	if record.PromptLength < 0 {
		record.PromptLength = 0
	}
	if record.ResponseLength < 0 {
		record.ResponseLength = 0
	}

	// token 总数缺失时回填：优先 prompt+completion，再退到按字符数估算
	if record.TokensUsed == 0 {
		if total := record.PromptTokens + record.CompletionTokens; total > 0 {
			record.TokensUsed = total
		} else {
			record.TokensUsed = int64(utils.EstimateTokensForLength(record.PromptLength + record.ResponseLength))
		}
	}

	// 成功记录不携带错误信息
	if record.Status == StatusSuccess {
		record.ErrorMessage = ""
	}

	// 置信度超出 [0,1] 视为无效
	if record.Confidence != nil && (*record.Confidence < 0 || *record.Confidence > 1) {
		record.Confidence = nil
	}

	return record, nil
}

// GetRecentMetrics 读取最近窗口的最后 limit 条记录
func (s *Service) GetRecentMetrics(limit int) []CallRecord {
	return s.coordinator.GetRecentMetrics(limit)
}

// GetMetricsByProvider 查询指定服务商的历史记录（最新在前，limit <= 0 不限制）
func (s *Service) GetMetricsByProvider(provider string, limit int) ([]CallRecord, error) {
	return s.coordinator.GetMetricsByProvider(provider, limit)
}

// GetAggregatedMetrics 解析符号化时间范围并返回聚合报告
func (s *Service) GetAggregatedMetrics(r TimeRange) (AggregatedReport, error) {
	startMs, endMs, err := ResolveTimeRange(r, time.Now())
	if err != nil {
		return AggregatedReport{}, err
	}
	return s.GetAggregatedMetricsBetween(startMs, endMs)
}

// GetAggregatedMetricsBetween 按显式时间界限返回聚合报告
func (s *Service) GetAggregatedMetricsBetween(startMs, endMs int64) (AggregatedReport, error) {
	records, err := s.coordinator.GetMetricsInRange(startMs, endMs)
	if err != nil {
		return AggregatedReport{}, err
	}
	return Aggregate(records), nil
}

// CleanupOldMetrics 执行保留策略清理，返回删除条数
func (s *Service) CleanupOldMetrics() (int64, error) {
	return s.coordinator.CleanupOldData()
}

// ClearAll 清空两级存储
func (s *Service) ClearAll() error {
	if err := s.coordinator.ClearAll(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// GetHistoricalCount 历史记录总数
func (s *Service) GetHistoricalCount() (int64, error) {
	return s.coordinator.GetCount()
}

// ExportAllMetrics 导出全部历史记录
func (s *Service) ExportAllMetrics() ([]CallRecord, error) {
	return s.coordinator.GetAllMetrics()
}

// Subscribe 订阅变更通知，返回订阅 id 和通知通道
// 通道容量为 1，通知可能被合并但不会阻塞记录路径
func (s *Service) Subscribe() (int, <-chan struct{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	ch := make(chan struct{}, 1)
	if !s.closed {
		s.subscribers[id] = ch
	} else {
		close(ch)
	}
	return id, ch
}

// Unsubscribe 取消订阅并关闭通知通道
func (s *Service) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

// Close 关闭门面：断开所有订阅者
func (s *Service) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// notify 向所有订阅者发送变更通知（非阻塞，永不失败）
func (s *Service) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// 订阅者尚未消费上一条通知，合并本次
		}
	}
}

// ResolveTimeRange 将符号化时间范围解析为绝对毫秒界限
// today 以本地自然日起点为下界，其余均为 [now - duration, now]
func ResolveTimeRange(r TimeRange, now time.Time) (int64, int64, error) {
	switch r {
	case RangeHour:
		return now.Add(-time.Hour).UnixMilli(), now.UnixMilli(), nil
	case RangeToday:
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return startOfDay.UnixMilli(), now.UnixMilli(), nil
	case RangeWeek:
		return now.AddDate(0, 0, -7).UnixMilli(), now.UnixMilli(), nil
	case RangeMonth:
		return now.AddDate(0, -1, 0).UnixMilli(), now.UnixMilli(), nil
	case RangeYear:
		return now.AddDate(-1, 0, 0).UnixMilli(), now.UnixMilli(), nil
	default:
		return 0, 0, fmt.Errorf("无效的时间范围: %s", r)
	}
}
