// Package diary 维护追加式 JSONL 交易日记：每次开平仓、持币观望、
// 撤单与对账动作各落一行，既是模型下一轮上下文的素材，也是排查现场。
package diary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry 是一条日记记录。除公共字段外，各动作可携带任意扩展字段。
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Action    string         `json:"action"`
	Asset     string         `json:"asset,omitempty"`
	Fields    map[string]any `json:"-"`
}

// 日记动作。开仓直接记 buy/sell，与决策动作同名。
const (
	ActionBuy            = "buy"
	ActionSell           = "sell"
	ActionHold           = "hold"
	ActionCancelSpecific = "cancel_specific"
	ActionReconcileClose = "reconcile_close"
	ActionError          = "error"
)

// MarshalJSON 把扩展字段平铺进同一个 JSON 对象。
func (e Entry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat["timestamp"] = e.Timestamp
	flat["action"] = e.Action
	if e.Asset != "" {
		flat["asset"] = e.Asset
	}
	return json.Marshal(flat)
}

// Diary 是并发安全的 JSONL 写入器。文件始终以追加模式打开，
// 历史行一旦写入不再改动。
type Diary struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func New(path string) (*Diary, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("diary path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Diary{path: path, now: time.Now}, nil
}

// Path 返回底层文件路径，供 HTTP 层做 tail/下载。
func (d *Diary) Path() string { return d.path }

// Append 落一条记录。timestamp 为写入时刻（UTC、秒精度）。
func (d *Diary) Append(action, asset string, fields map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := Entry{
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Action:    action,
		Asset:     asset,
		Fields:    fields,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Recent 返回最近 n 行（按写入顺序，旧在前），跳过坏行。
func (d *Diary) Recent(n int) ([]map[string]any, error) {
	if n <= 0 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			lines = append(lines, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	entries := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		entries = append(entries, m)
	}
	return entries, nil
}
