package decision

// 中文说明：
// 决策域类型。模型输出在边界处统一归一化为 TradeDecision，
// 引擎内部不再区分对象形式与旧的定长数组形式。

const (
	ActionBuy            = "buy"
	ActionSell           = "sell"
	ActionHold           = "hold"
	ActionCancelSpecific = "cancel_specific"
)

// TradeDecision 是单个资产在一个周期内的决策。
type TradeDecision struct {
	Asset         string   `json:"asset"`
	Action        string   `json:"action"`
	AllocationUSD float64  `json:"allocation_usd"`
	TPPrice       *float64 `json:"tp_price"`
	SLPrice       *float64 `json:"sl_price"`
	ExitPlan      string   `json:"exit_plan"`
	Rationale     string   `json:"rationale"`
	SetupGrade    string   `json:"setup_grade,omitempty"`
	OrderIDs      []string `json:"order_ids,omitempty"`
}

// Result 是一次完整决策调用的产物。
type Result struct {
	Reasoning string          `json:"reasoning"`
	Decisions []TradeDecision `json:"trade_decisions"`
}

// HoldAll 为每个资产生成统一的 hold 决策，用于各级兜底。
func HoldAll(assets []string, rationale string) *Result {
	decisions := make([]TradeDecision, 0, len(assets))
	for _, a := range assets {
		decisions = append(decisions, TradeDecision{
			Asset:     a,
			Action:    ActionHold,
			Rationale: rationale,
		})
	}
	return &Result{Reasoning: rationale, Decisions: decisions}
}

// FilterAssets 丢弃不在请求集合里的决策；未知资产的决策绝不进入执行层。
func (r *Result) FilterAssets(assets []string) {
	allowed := make(map[string]bool, len(assets))
	for _, a := range assets {
		allowed[a] = true
	}
	kept := r.Decisions[:0]
	for _, d := range r.Decisions {
		if allowed[d.Asset] {
			kept = append(kept, d)
		}
	}
	r.Decisions = kept
}
