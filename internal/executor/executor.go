// Package executor 把归一化后的交易决策落到交易所：风险上限钳制、
// 按精度换算合约数量、市价入场、TP/SL 括号单，以及活跃仓位账本的维护。
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"helix/internal/decision"
	"helix/internal/diary"
	"helix/internal/gateway/hyperliquid"
	"helix/internal/logger"
	"helix/internal/types"
)

// Gateway 是对交易所客户端的最小依赖面。
type Gateway interface {
	AccountState(ctx context.Context) (types.AccountSnapshot, []types.PositionSnapshot, error)
	OpenOrders(ctx context.Context) ([]types.OpenOrder, error)
	MidPrice(ctx context.Context, symbol string) (float64, error)
	RoundSize(ctx context.Context, symbol string, size float64) (float64, error)
	MarketOrder(ctx context.Context, symbol string, isBuy bool, size, slippagePct float64) (*hyperliquid.ExchangeResponse, error)
	PlaceTriggerOrder(ctx context.Context, symbol string, isBuy bool, size, triggerPx float64, tpsl string) (*hyperliquid.ExchangeResponse, error)
	CancelOrders(ctx context.Context, symbol string, oids []int64) error
	UpdateLeverage(ctx context.Context, symbol string, leverage int) error
	FillsSince(ctx context.Context, symbol string, since time.Time) ([]float64, error)
}

// Diarist 抽象日记写入，便于测试替换。
type Diarist interface {
	Append(action, asset string, fields map[string]any) error
}

type Executor struct {
	gw     Gateway
	ledger *Ledger
	diary  Diarist

	baseRiskPct   float64
	slippagePct   float64
	minNotional   float64
	fillWait      time.Duration
	sleep         func(time.Duration)
	now           func() time.Time
}

func New(gw Gateway, ledger *Ledger, d Diarist, baseRiskPct, slippagePct, minNotionalUSD float64) *Executor {
	return &Executor{
		gw:          gw,
		ledger:      ledger,
		diary:       d,
		baseRiskPct: baseRiskPct,
		slippagePct: slippagePct,
		minNotional: minNotionalUSD,
		fillWait:    time.Second,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (x *Executor) Ledger() *Ledger { return x.ledger }

// 按 setup 档位放大基础风险额度。未知档位按最保守的 C 档处理。
func gradeMultiplier(grade string) float64 {
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "A":
		return 2.5
	case "B":
		return 1.5
	default:
		return 1.0
	}
}

// 档位同时决定杠杆上限，模型无权指定杠杆。
func gradeLeverage(grade string) int {
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "A":
		return 5
	case "B":
		return 3
	default:
		return 2
	}
}

// RiskCap 返回该档位允许的单笔名义上限（USD）。
func (x *Executor) RiskCap(accountValue float64, grade string) float64 {
	cap := decimal.NewFromFloat(accountValue).
		Mul(decimal.NewFromFloat(x.baseRiskPct)).
		Mul(decimal.NewFromFloat(gradeMultiplier(grade)))
	f, _ := cap.Float64()
	return f
}

// Execute 执行一条决策。cyclePrice 是本周期快照里该资产的中间价，
// 定量、滑点参考与入场记账共用一份，避免同轮内多次读价造成偏差；
// 传 0 表示快照缺价，入场时回退为实时读取。业务性拒绝（额度钳为零、
// 低于最小名义）不视为错误向上传播，只落日记；真正的交易所故障才返回 error。
func (x *Executor) Execute(ctx context.Context, d decision.TradeDecision, acct types.AccountSnapshot, cyclePrice float64) error {
	switch d.Action {
	case decision.ActionHold:
		return x.executeHold(d)
	case decision.ActionCancelSpecific:
		return x.executeCancel(ctx, d)
	case decision.ActionBuy, decision.ActionSell:
		return x.executeEntry(ctx, d, acct, cyclePrice)
	default:
		logger.Warnf("executor: 未知动作 %q（%s），按 hold 处理", d.Action, d.Asset)
		return x.executeHold(d)
	}
}

func (x *Executor) executeHold(d decision.TradeDecision) error {
	return x.diary.Append(diary.ActionHold, d.Asset, map[string]any{
		"rationale":   d.Rationale,
		"setup_grade": d.SetupGrade,
	})
}

// executeCancel 逐个撤单，单个失败不影响其余订单。
func (x *Executor) executeCancel(ctx context.Context, d decision.TradeDecision) error {
	results := make(map[string]string, len(d.OrderIDs))
	for _, raw := range d.OrderIDs {
		oid, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			results[raw] = "error: 无效订单号"
			continue
		}
		if err := x.gw.CancelOrders(ctx, d.Asset, []int64{oid}); err != nil {
			logger.Warnf("executor: 撤单 %s/%d 失败: %v", d.Asset, oid, err)
			results[raw] = "error: " + err.Error()
			continue
		}
		results[raw] = "ok"
	}
	return x.diary.Append(diary.ActionCancelSpecific, d.Asset, map[string]any{
		"order_ids": d.OrderIDs,
		"results":   results,
		"rationale": d.Rationale,
	})
}

func (x *Executor) executeEntry(ctx context.Context, d decision.TradeDecision, acct types.AccountSnapshot, cyclePrice float64) error {
	isBuy := d.Action == decision.ActionBuy

	// 1. 风险上限钳制：超额申请收敛到上限，而不是丢弃这笔交易。
	cap := x.RiskCap(acct.AccountValue, d.SetupGrade)
	alloc := d.AllocationUSD
	if alloc > cap {
		logger.Warnf("executor: %s 申请 %.2f USD 超出 %s 档上限 %.2f，按上限执行",
			d.Asset, alloc, d.SetupGrade, cap)
		alloc = cap
	}
	if alloc <= 0 {
		logger.Infof("executor: %s 可用额度为零，跳过", d.Asset)
		return x.diary.Append(diary.ActionHold, d.Asset, map[string]any{
			"rationale":   "allocation clamped to zero",
			"setup_grade": d.SetupGrade,
		})
	}

	// 2. 复用本周期快照价，定量与入场记账用同一份；快照缺价才实时补读。
	price := cyclePrice
	if price <= 0 {
		logger.Warnf("executor: %s 周期快照缺价，回退实时读取", d.Asset)
		mid, err := x.gw.MidPrice(ctx, d.Asset)
		if err != nil {
			return fmt.Errorf("读取 %s 价格: %w", d.Asset, err)
		}
		price = mid
	}
	if price <= 0 {
		return fmt.Errorf("%s 价格无效: %v", d.Asset, price)
	}

	// TP/SL 与入场价的相对关系异常时只标记不拒单，交给模型下一轮修正。
	sane := bracketSane(isBuy, price, d.TPPrice, d.SLPrice)
	if !sane {
		logger.Warnf("executor: %s TP/SL 方向异常（price=%.4f tp=%v sl=%v），照常执行并标记",
			d.Asset, price, fmtPricePtr(d.TPPrice), fmtPricePtr(d.SLPrice))
	}
	rawSize, _ := decimal.NewFromFloat(alloc).Div(decimal.NewFromFloat(price)).Float64()
	size, err := x.gw.RoundSize(ctx, d.Asset, rawSize)
	if err != nil {
		return fmt.Errorf("按精度取整 %s 数量: %w", d.Asset, err)
	}
	notional, _ := decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(price)).Float64()
	if notional < x.minNotional {
		logger.Warnf("executor: %s 名义 %.2f USD 低于最小值 %.2f，拒绝下单", d.Asset, notional, x.minNotional)
		_ = x.diary.Append(diary.ActionError, d.Asset, map[string]any{
			"reason":       "below_min_notional",
			"notional_usd": notional,
		})
		return fmt.Errorf("%s 名义 %.2f: %w", d.Asset, notional, hyperliquid.ErrBelowMinNotional)
	}

	// 3. 杠杆由档位决定；设置失败不阻塞入场。
	leverage := gradeLeverage(d.SetupGrade)
	if err := x.gw.UpdateLeverage(ctx, d.Asset, leverage); err != nil {
		logger.Warnf("executor: 设置 %s 杠杆 %dx 失败: %v", d.Asset, leverage, err)
	}

	// 4. 市价入场。
	openedAt := x.now()
	resp, err := x.gw.MarketOrder(ctx, d.Asset, isBuy, size, x.slippagePct)
	if err != nil {
		_ = x.diary.Append(diary.ActionError, d.Asset, map[string]any{
			"reason": "entry_order_failed",
			"error":  err.Error(),
		})
		return fmt.Errorf("%s 市价单: %w", d.Asset, err)
	}
	entryOIDs := resp.ExtractOIDs()

	// 5. 成交确认：短暂等待后轮询最近成交，尽力而为。
	x.sleep(x.fillWait)
	fills, ferr := x.gw.FillsSince(ctx, d.Asset, openedAt)
	if ferr != nil {
		logger.Warnf("executor: 查询 %s 成交失败: %v", d.Asset, ferr)
	}
	var filledSize float64
	for _, f := range fills {
		filledSize += f
	}
	fillConfirmed := filledSize > 0

	// 6. TP/SL 括号单方向与入场相反，reduce-only。
	//    失败不回滚已入场的仓位：留下裸仓等待下一轮决策补救。
	var tpOID, slOID int64
	if d.TPPrice != nil {
		tpOID = x.placeBracket(ctx, d.Asset, !isBuy, size, *d.TPPrice, "tp")
	}
	if d.SLPrice != nil {
		slOID = x.placeBracket(ctx, d.Asset, !isBuy, size, *d.SLPrice, "sl")
	}

	// 7. 账本替换写入：每资产至多一条。
	x.ledger.Put(ActiveTrade{
		Asset:      d.Asset,
		IsLong:     isBuy,
		Amount:     size,
		EntryPrice: price,
		TPOrderID:  tpOID,
		SLOrderID:  slOID,
		ExitPlan:   d.ExitPlan,
		SetupGrade: d.SetupGrade,
		OpenedAt:   openedAt,
	})

	entryAction := diary.ActionSell
	if isBuy {
		entryAction = diary.ActionBuy
	}
	logger.Infof("executor: %s %s size=%v @ %.4f（确认成交 %v）",
		d.Asset, entryAction, size, price, fillConfirmed)
	return x.diary.Append(entryAction, d.Asset, map[string]any{
		"side":           map[bool]string{true: "long", false: "short"}[isBuy],
		"allocation_usd": alloc,
		"size":           size,
		"entry_price":    price,
		"leverage":       leverage,
		"tp_price":       d.TPPrice,
		"sl_price":       d.SLPrice,
		"tp_order_id":    tpOID,
		"sl_order_id":    slOID,
		"bracket_sane":   sane,
		"entry_oids":     entryOIDs,
		"fill_confirmed": fillConfirmed,
		"filled_size":    filledSize,
		"setup_grade":    d.SetupGrade,
		"exit_plan":      d.ExitPlan,
		"rationale":      d.Rationale,
	})
}

// bracketSane 检查括号单与入场价的相对关系：多头要求 tp > price > sl，
// 空头相反。缺省的一侧不参与判断。
func bracketSane(isBuy bool, price float64, tp, sl *float64) bool {
	if isBuy {
		if tp != nil && *tp <= price {
			return false
		}
		if sl != nil && *sl >= price {
			return false
		}
		return true
	}
	if tp != nil && *tp >= price {
		return false
	}
	if sl != nil && *sl <= price {
		return false
	}
	return true
}

func fmtPricePtr(p *float64) string {
	if p == nil {
		return "nil"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func (x *Executor) placeBracket(ctx context.Context, asset string, isBuy bool, size, triggerPx float64, tpsl string) int64 {
	resp, err := x.gw.PlaceTriggerOrder(ctx, asset, isBuy, size, triggerPx, tpsl)
	if err != nil {
		logger.Errorf("executor: %s %s 触发单失败（仓位暂无保护）: %v", asset, strings.ToUpper(tpsl), err)
		return 0
	}
	if oids := resp.ExtractOIDs(); len(oids) > 0 {
		return oids[0]
	}
	return 0
}
