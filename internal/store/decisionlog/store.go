// Package decisionlog 用 SQLite 持久化每一轮模型交互的原始请求/应答，
// 供事后排查与只读 HTTP 接口翻页查看。
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"helix/internal/decision"
)

// Store 管理决策留档库。单写者，多读者。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Record 是一条留档行。DecisionsJSON 为归一化结果的 JSON 序列化。
type Record struct {
	ID            int64  `json:"id"`
	Timestamp     int64  `json:"ts"`
	TraceID       string `json:"trace_id"`
	Stage         string `json:"stage"`
	Model         string `json:"model"`
	System        string `json:"system_prompt"`
	User          string `json:"user_prompt"`
	RawOutput     string `json:"raw_output"`
	ParseError    string `json:"parse_error,omitempty"`
	DecisionsJSON string `json:"decisions_json,omitempty"`
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			trace_id TEXT,
			stage TEXT,
			model TEXT,
			system_prompt TEXT,
			user_prompt TEXT,
			raw_output TEXT,
			parse_error TEXT,
			decisions_json TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_ts ON decision_logs(ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_trace ON decision_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertEngineRecord 把引擎回调的留档转成行写入。
func (s *Store) InsertEngineRecord(ctx context.Context, rec decision.Record) (int64, error) {
	row := Record{
		TraceID:    rec.TraceID,
		Stage:      rec.Stage,
		Model:      rec.Model,
		System:     rec.System,
		User:       rec.User,
		RawOutput:  rec.RawOutput,
		ParseError: rec.ParseError,
	}
	if rec.Result != nil {
		if b, err := json.Marshal(rec.Result); err == nil {
			row.DecisionsJSON = string(b)
		}
	}
	return s.Insert(ctx, row)
}

// Insert 写入一行，返回自增 id。
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("decision log store 已关闭")
	}
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_logs
			(ts, trace_id, stage, model, system_prompt, user_prompt, raw_output, parse_error, decisions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, rec.TraceID, rec.Stage, rec.Model, rec.System, rec.User,
		rec.RawOutput, rec.ParseError, rec.DecisionsJSON, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List 按时间倒序翻页。
func (s *Store) List(ctx context.Context, limit, offset int) ([]Record, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("decision log store 已关闭")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, ts, trace_id, stage, model, system_prompt, user_prompt, raw_output, parse_error, decisions_json
		FROM decision_logs ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TraceID, &rec.Stage, &rec.Model,
			&rec.System, &rec.User, &rec.RawOutput, &rec.ParseError, &rec.DecisionsJSON); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
