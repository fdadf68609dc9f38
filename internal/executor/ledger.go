package executor

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// ActiveTrade 是本地账本中的一条活跃仓位记录。账本只是交易所状态的
// 缓存：交易所侧才是权威，对账负责清掉漂移的条目。
type ActiveTrade struct {
	Asset      string    `json:"asset"`
	IsLong     bool      `json:"is_long"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	TPOrderID  int64     `json:"tp_order_id,omitempty"`
	SLOrderID  int64     `json:"sl_order_id,omitempty"`
	ExitPlan   string    `json:"exit_plan,omitempty"`
	SetupGrade string    `json:"setup_grade,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

func (t ActiveTrade) Side() string {
	if t.IsLong {
		return "long"
	}
	return "short"
}

// Ledger 按资产维护活跃仓位，每个资产至多一条，写入即替换。
type Ledger struct {
	mu     sync.RWMutex
	trades map[string]ActiveTrade
}

func NewLedger() *Ledger {
	return &Ledger{trades: make(map[string]ActiveTrade)}
}

// Put 写入（或替换）该资产的活跃仓位。
func (l *Ledger) Put(t ActiveTrade) {
	asset := strings.ToUpper(strings.TrimSpace(t.Asset))
	if asset == "" {
		return
	}
	t.Asset = asset
	l.mu.Lock()
	l.trades[asset] = t
	l.mu.Unlock()
}

func (l *Ledger) Get(asset string) (ActiveTrade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.trades[strings.ToUpper(strings.TrimSpace(asset))]
	return t, ok
}

func (l *Ledger) Remove(asset string) bool {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.trades[asset]; !ok {
		return false
	}
	delete(l.trades, asset)
	return true
}

// All 返回按资产名排序的快照。
func (l *Ledger) All() []ActiveTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ActiveTrade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}
