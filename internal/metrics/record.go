// Package metrics 提供 AI 请求指标的记录、分层存储与聚合统计
package metrics

// InputFormat 请求输入格式
type InputFormat string

const (
	InputFormatJSON InputFormat = "json"
	InputFormatText InputFormat = "text"
	InputFormatCode InputFormat = "code"
)

// CallStatus 请求结果状态
type CallStatus string

const (
	StatusSuccess CallStatus = "success"
	StatusError   CallStatus = "error"
)

// CallRecord 一次上游 AI 请求的完整记录（写入后不可变）
type CallRecord struct {
	ID               string      `json:"id"`
	Timestamp        int64       `json:"timestamp"` // 毫秒时间戳
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	InputFormat      InputFormat `json:"inputFormat"`
	LatencyMs        float64     `json:"latencyMs"`
	TokensUsed       int64       `json:"tokensUsed"`
	PromptTokens     int64       `json:"promptTokens"`
	CompletionTokens int64       `json:"completionTokens"`
	Status           CallStatus  `json:"status"`
	ErrorMessage     string      `json:"errorMessage,omitempty"` // 仅失败时有值
	EstimatedCost    float64     `json:"estimatedCost"`          // 美元
	PromptLength     int64       `json:"promptLength"`
	ResponseLength   int64       `json:"responseLength"`
	Confidence       *float64    `json:"confidence,omitempty"` // 可选，范围 [0,1]
}

// ProviderStats 按服务商聚合的统计
type ProviderStats struct {
	TotalCalls   int64   `json:"totalCalls"`
	TotalTokens  int64   `json:"totalTokens"`
	TotalCost    float64 `json:"totalCost"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// ModelStats 按 "provider:model" 聚合的统计
type ModelStats struct {
	TotalCalls   int64   `json:"totalCalls"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// HourlyStat 按小时分桶的统计（桶起始时间为毫秒时间戳）
type HourlyStat struct {
	Timestamp int64 `json:"timestamp"`
	Calls     int64 `json:"calls"`
	Tokens    int64 `json:"tokens"`
}

// DailyStat 按自然日分桶的统计（桶起始时间为毫秒时间戳）
type DailyStat struct {
	Timestamp int64   `json:"timestamp"`
	Calls     int64   `json:"calls"`
	Tokens    int64   `json:"tokens"`
	TotalCost float64 `json:"totalCost"`
}

// AggregatedReport 一次聚合计算的完整结果（即算即弃，不做缓存）
type AggregatedReport struct {
	TotalCalls       int64                    `json:"totalCalls"`
	SuccessfulCalls  int64                    `json:"successfulCalls"`
	FailedCalls      int64                    `json:"failedCalls"`
	SuccessRate      float64                  `json:"successRate"`
	AvgLatencyMs     float64                  `json:"avgLatencyMs"`
	P50LatencyMs     float64                  `json:"p50LatencyMs"`
	P95LatencyMs     float64                  `json:"p95LatencyMs"`
	P99LatencyMs     float64                  `json:"p99LatencyMs"`
	TotalTokens      int64                    `json:"totalTokens"`
	AvgTokensPerCall float64                  `json:"avgTokensPerCall"`
	TotalCost        float64                  `json:"totalCost"`
	ByProvider       map[string]ProviderStats `json:"byProvider"`
	ByModel          map[string]ModelStats    `json:"byModel"`
	HourlyStats      []HourlyStat             `json:"hourlyStats"`
	DailyStats       []DailyStat              `json:"dailyStats"`
}

// TimeRange 符号化时间范围
type TimeRange string

const (
	RangeHour  TimeRange = "hour"
	RangeToday TimeRange = "today"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)
