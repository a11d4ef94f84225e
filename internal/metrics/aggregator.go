package metrics

import (
	"math"
	"sort"
	"time"
)

// Aggregate 对一组请求记录做纯聚合计算
// 无任何存储访问和副作用，输入为空时返回全零报告
func Aggregate(records []CallRecord) AggregatedReport {
	report := AggregatedReport{
		ByProvider:  make(map[string]ProviderStats),
		ByModel:     make(map[string]ModelStats),
		HourlyStats: []HourlyStat{},
		DailyStats:  []DailyStat{},
	}

	if len(records) == 0 {
		return report
	}

	total := int64(len(records))
	report.TotalCalls = total

	// 按状态分区 + 全量累加
	var latencySum float64
	latencies := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Status == StatusSuccess {
			report.SuccessfulCalls++
		} else {
			report.FailedCalls++
		}
		latencySum += r.LatencyMs
		latencies = append(latencies, r.LatencyMs)
		report.TotalTokens += r.TokensUsed
		report.TotalCost += r.EstimatedCost
	}

	report.SuccessRate = float64(report.SuccessfulCalls) / float64(total)
	report.AvgLatencyMs = latencySum / float64(total)
	report.AvgTokensPerCall = float64(report.TotalTokens) / float64(total)

	// 最近邻秩法百分位：升序排序后取第 ceil(p/100*n) 个元素
	sort.Float64s(latencies)
	report.P50LatencyMs = percentileNearestRank(latencies, 50)
	report.P95LatencyMs = percentileNearestRank(latencies, 95)
	report.P99LatencyMs = percentileNearestRank(latencies, 99)

	report.ByProvider = aggregateByProvider(records)
	report.ByModel = aggregateByModel(records)
	report.HourlyStats = bucketByHour(records)
	report.DailyStats = bucketByDay(records)

	return report
}

// percentileNearestRank 最近邻秩法百分位
// latencies 必须已升序排序；秩为 ceil(p/100*n)，钳制到 [1, n]
func percentileNearestRank(latencies []float64, p float64) float64 {
	n := len(latencies)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return latencies[rank-1]
}

// aggregateByProvider 按服务商分组聚合
func aggregateByProvider(records []CallRecord) map[string]ProviderStats {
	type providerAcc struct {
		calls      int64
		success    int64
		tokens     int64
		cost       float64
		latencySum float64
	}

	acc := make(map[string]*providerAcc)
	for _, r := range records {
		a, ok := acc[r.Provider]
		if !ok {
			a = &providerAcc{}
			acc[r.Provider] = a
		}
		a.calls++
		if r.Status == StatusSuccess {
			a.success++
		}
		a.tokens += r.TokensUsed
		a.cost += r.EstimatedCost
		a.latencySum += r.LatencyMs
	}

	result := make(map[string]ProviderStats, len(acc))
	for provider, a := range acc {
		result[provider] = ProviderStats{
			TotalCalls:   a.calls,
			TotalTokens:  a.tokens,
			TotalCost:    a.cost,
			SuccessRate:  float64(a.success) / float64(a.calls),
			AvgLatencyMs: a.latencySum / float64(a.calls),
		}
	}
	return result
}

// aggregateByModel 按 "provider:model" 分组聚合
func aggregateByModel(records []CallRecord) map[string]ModelStats {
	type modelAcc struct {
		calls      int64
		latencySum float64
	}

	acc := make(map[string]*modelAcc)
	for _, r := range records {
		key := r.Provider + ":" + r.Model
		a, ok := acc[key]
		if !ok {
			a = &modelAcc{}
			acc[key] = a
		}
		a.calls++
		a.latencySum += r.LatencyMs
	}

	result := make(map[string]ModelStats, len(acc))
	for key, a := range acc {
		result[key] = ModelStats{
			TotalCalls:   a.calls,
			AvgLatencyMs: a.latencySum / float64(a.calls),
		}
	}
	return result
}

// bucketByHour 按小时分桶（本地时区，桶起始时间为键；空桶省略）
func bucketByHour(records []CallRecord) []HourlyStat {
	buckets := make(map[int64]*HourlyStat)
	for _, r := range records {
		t := time.UnixMilli(r.Timestamp).Local()
		hourStart := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
		bucket := hourStart.UnixMilli()
		b, ok := buckets[bucket]
		if !ok {
			b = &HourlyStat{Timestamp: bucket}
			buckets[bucket] = b
		}
		b.Calls++
		b.Tokens += r.TokensUsed
	}
	return sortedHourly(buckets)
}

// bucketByDay 按自然日分桶（本地时区，桶起始时间为键；空桶省略）
func bucketByDay(records []CallRecord) []DailyStat {
	buckets := make(map[int64]*DailyStat)
	for _, r := range records {
		t := time.UnixMilli(r.Timestamp).Local()
		dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		bucket := dayStart.UnixMilli()
		b, ok := buckets[bucket]
		if !ok {
			b = &DailyStat{Timestamp: bucket}
			buckets[bucket] = b
		}
		b.Calls++
		b.Tokens += r.TokensUsed
		b.TotalCost += r.EstimatedCost
	}

	result := make([]DailyStat, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	return result
}

func sortedHourly(buckets map[int64]*HourlyStat) []HourlyStat {
	result := make([]HourlyStat, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	return result
}
