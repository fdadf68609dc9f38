package types

import (
	"strings"
	"time"
)

// AccountSnapshot 描述某一时刻的账户资金状况（USDC 计价）。
type AccountSnapshot struct {
	AccountValue float64   `json:"account_value"`
	Available    float64   `json:"available"`
	MarginUsed   float64   `json:"margin_used"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PositionSnapshot 描述交易所侧的一个永续合约持仓。
// Quantity 带符号：多仓为正，空仓为负。
type PositionSnapshot struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price,omitempty"`
	LiquidationPrice float64 `json:"liquidation_price,omitempty"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	ReturnOnEquity   float64 `json:"return_on_equity,omitempty"`
	Leverage         float64 `json:"leverage,omitempty"`
	MarginUsed       float64 `json:"margin_used,omitempty"`
}

func (p PositionSnapshot) IsLong() bool { return p.Quantity > 0 }

func (p PositionSnapshot) Side() string {
	if p.Quantity >= 0 {
		return "long"
	}
	return "short"
}

// OpenOrder 描述交易所侧的一张挂单（含 TP/SL 触发单）。
type OpenOrder struct {
	Symbol       string  `json:"symbol"`
	OrderID      int64   `json:"order_id"`
	IsBuy        bool    `json:"is_buy"`
	Size         float64 `json:"size"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	OrderType    string  `json:"order_type,omitempty"`
	ReduceOnly   bool    `json:"reduce_only,omitempty"`
}

// IsTrigger 判断挂单是否为 TP/SL 类触发单。
func (o OpenOrder) IsTrigger() bool {
	t := strings.ToLower(o.OrderType)
	return strings.Contains(t, "take profit") || strings.Contains(t, "stop") || o.TriggerPrice > 0
}

// Fill 描述一笔成交记录。
type Fill struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	IsBuy     bool      `json:"is_buy"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	ClosedPnl float64   `json:"closed_pnl,omitempty"`
	Fee       float64   `json:"fee,omitempty"`
}
