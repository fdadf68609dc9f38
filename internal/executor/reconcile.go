package executor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"helix/internal/diary"
	"helix/internal/logger"
)

// Reconcile 在每轮执行决策前运行一次：账本里某资产若在交易所侧既无
// 持仓也无挂单（手动平仓、强平、括号单在循环视野外成交），就移除该
// 条目并落一条 reconcile_close 日记。天然幂等：第二次运行时条目已不
// 存在，不会产生新的日记。
func (x *Executor) Reconcile(ctx context.Context) error {
	trades := x.ledger.All()
	if len(trades) == 0 {
		return nil
	}
	_, positions, err := x.gw.AccountState(ctx)
	if err != nil {
		return fmt.Errorf("对账读取持仓: %w", err)
	}
	orders, err := x.gw.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("对账读取挂单: %w", err)
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		if math.Abs(p.Quantity) > 0 {
			held[strings.ToUpper(p.Symbol)] = true
		}
	}
	pending := make(map[string]bool, len(orders))
	for _, o := range orders {
		pending[strings.ToUpper(o.Symbol)] = true
	}

	for _, t := range trades {
		if held[t.Asset] || pending[t.Asset] {
			continue
		}
		if !x.ledger.Remove(t.Asset) {
			continue
		}
		logger.Infof("executor: 对账移除 %s（交易所侧无持仓也无挂单）", t.Asset)
		if err := x.diary.Append(diary.ActionReconcileClose, t.Asset, map[string]any{
			"reason":      "no_position_no_orders",
			"side":        t.Side(),
			"amount":      t.Amount,
			"entry_price": t.EntryPrice,
			"opened_at":   t.OpenedAt,
		}); err != nil {
			logger.Warnf("executor: 对账日记写入失败: %v", err)
		}
	}
	return nil
}
