package metrics

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore 历史存储：SQLite 持久化的全量请求记录归档
// 初始化是幂等的惰性操作：首次访问建库建表，并发调用共享同一次
// 进行中的初始化；Close 之后的操作会透明地重新初始化而不是报错
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore 创建 SQLite 历史存储（不立即打开连接）
func NewSQLiteStore(dbPath string) *SQLiteStore {
	if dbPath == "" {
		dbPath = ".config/metrics.db"
	}
	return &SQLiteStore{dbPath: dbPath}
}

// ensureOpen 获取数据库连接，必要时执行初始化
// 持锁期间完成建库建表，并发调用者会阻塞等待同一次初始化完成
func (s *SQLiteStore) ensureOpen() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	// 确保目录存在
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	// 打开数据库连接（WAL 模式 + NORMAL 同步）
	// modernc.org/sqlite 使用 _pragma= 语法设置 PRAGMA
	dsn := s.dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 单写入连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库 schema 失败: %w", err)
	}

	s.db = db
	log.Printf("[SQLite-Init] 历史存储已初始化: %s", s.dbPath)
	return s.db, nil
}

// initSchema 初始化数据库表结构
func initSchema(db *sql.DB) error {
	schema := `
		-- 请求记录表（按 id 去重，记录写入后不可变）
		CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_format TEXT NOT NULL DEFAULT 'text',
			latency_ms REAL NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			estimated_cost REAL NOT NULL DEFAULT 0,
			prompt_length INTEGER NOT NULL DEFAULT 0,
			response_length INTEGER NOT NULL DEFAULT 0
		);

		-- 索引：按时间范围查询
		CREATE INDEX IF NOT EXISTS idx_records_timestamp
			ON call_records(timestamp);

		-- 索引：按服务商查询
		CREATE INDEX IF NOT EXISTS idx_records_provider
			ON call_records(provider);

		-- 索引：按模型查询
		CREATE INDEX IF NOT EXISTS idx_records_model
			ON call_records(model);

		-- 索引：按状态查询
		CREATE INDEX IF NOT EXISTS idx_records_status
			ON call_records(status);

		-- 复合索引：按服务商 + 时间查询
		CREATE INDEX IF NOT EXISTS idx_records_provider_timestamp
			ON call_records(provider, timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// 版本迁移：使用 user_version PRAGMA 检测 schema 版本
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		// v0 -> v1: 添加 confidence 列（可空）
		migrations := []string{
			"ALTER TABLE call_records ADD COLUMN confidence REAL",
			"PRAGMA user_version = 1",
		}
		for _, stmt := range migrations {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration v0->v1 failed: %w", err)
			}
		}
		log.Printf("[SQLite-Migration] schema 升级: v0 -> v1 (添加 confidence 列)")
	}

	return nil
}

const insertRecordSQL = `
	INSERT OR REPLACE INTO call_records
	(id, timestamp, provider, model, input_format, latency_ms,
	 tokens_used, prompt_tokens, completion_tokens, status,
	 error_message, estimated_cost, prompt_length, response_length, confidence)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectRecordColumns = `
	id, timestamp, provider, model, input_format, latency_ms,
	tokens_used, prompt_tokens, completion_tokens, status,
	error_message, estimated_cost, prompt_length, response_length, confidence
`

// SaveMetric 写入单条记录（按 id upsert）
// 存储未能初始化或写入失败时报错，由调用方决定是否吞掉
func (s *SQLiteStore) SaveMetric(record CallRecord) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	if _, err := db.Exec(insertRecordSQL, recordArgs(record)...); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	return nil
}

// SaveMetricsBatch 在单个事务内写入多条记录
// 任意一条失败即整体回滚并报错
func (s *SQLiteStore) SaveMetricsBatch(records []CallRecord) error {
	if len(records) == 0 {
		return nil
	}

	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(recordArgs(r)...); err != nil {
			return fmt.Errorf("批量写入记录 %s 失败: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// GetMetricsInRange 按时间范围查询（闭区间，毫秒时间戳，按时间升序返回）
func (s *SQLiteStore) GetMetricsInRange(startMs, endMs int64) ([]CallRecord, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT `+selectRecordColumns+`
		FROM call_records
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, startMs, endMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetMetricsByProvider 按服务商查询，limit > 0 时限制返回条数（最新优先）
func (s *SQLiteStore) GetMetricsByProvider(provider string, limit int) ([]CallRecord, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + selectRecordColumns + `
		FROM call_records
		WHERE provider = ?
		ORDER BY timestamp DESC
	`
	args := []interface{}{provider}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetAllMetrics 全表扫描（代价高，仅用于小数据集或导出）
func (s *SQLiteStore) GetAllMetrics() ([]CallRecord, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT ` + selectRecordColumns + `
		FROM call_records
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetCount 获取记录总数
func (s *SQLiteStore) GetCount() (int64, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}

	var count int64
	err = db.QueryRow("SELECT COUNT(*) FROM call_records").Scan(&count)
	return count, err
}

// CleanupOldMetrics 删除所有 timestamp < olderThanMs 的记录，返回删除条数
// 除 Clear 之外唯一的删除路径；无可删数据时返回 0 不报错
func (s *SQLiteStore) CleanupOldMetrics(olderThanMs int64) (int64, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}

	result, err := db.Exec("DELETE FROM call_records WHERE timestamp < ?", olderThanMs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Clear 删除所有记录
func (s *SQLiteStore) Clear() error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}

	_, err = db.Exec("DELETE FROM call_records")
	return err
}

// Close 释放数据库连接；后续操作会透明地重新初始化
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// recordArgs 将记录展开为插入参数
func recordArgs(r CallRecord) []interface{} {
	var confidence interface{}
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	return []interface{}{
		r.ID, r.Timestamp, r.Provider, r.Model, string(r.InputFormat), r.LatencyMs,
		r.TokensUsed, r.PromptTokens, r.CompletionTokens, string(r.Status),
		r.ErrorMessage, r.EstimatedCost, r.PromptLength, r.ResponseLength, confidence,
	}
}

// scanRecords 从查询结果集扫描记录
func scanRecords(rows *sql.Rows) ([]CallRecord, error) {
	var records []CallRecord
	for rows.Next() {
		var r CallRecord
		var inputFormat, status string
		var confidence sql.NullFloat64

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Provider, &r.Model, &inputFormat, &r.LatencyMs,
			&r.TokensUsed, &r.PromptTokens, &r.CompletionTokens, &status,
			&r.ErrorMessage, &r.EstimatedCost, &r.PromptLength, &r.ResponseLength, &confidence,
		)
		if err != nil {
			return nil, err
		}

		r.InputFormat = InputFormat(inputFormat)
		r.Status = CallStatus(status)
		if confidence.Valid {
			c := confidence.Float64
			r.Confidence = &c
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
