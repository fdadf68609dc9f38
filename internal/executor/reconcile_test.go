package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/types"
)

func TestReconcileRemovesOrphanedEntry(t *testing.T) {
	gw := &fakeGateway{
		positions: []types.PositionSnapshot{{Symbol: "BTC", Quantity: 0.5}},
		orders:    []types.OpenOrder{{Symbol: "SOL", OrderID: 7}},
	}
	d := &fakeDiary{}
	x := newTestExecutor(gw, d)
	opened := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	x.Ledger().Put(ActiveTrade{Asset: "BTC", IsLong: true, Amount: 0.5, OpenedAt: opened})
	x.Ledger().Put(ActiveTrade{Asset: "ETH", IsLong: true, Amount: 1.2, EntryPrice: 2000, OpenedAt: opened})
	x.Ledger().Put(ActiveTrade{Asset: "SOL", IsLong: false, Amount: 10, OpenedAt: opened})

	require.NoError(t, x.Reconcile(context.Background()))

	// BTC 有持仓、SOL 有挂单，都保留；ETH 两者皆无，被移除
	assert.Equal(t, 2, x.Ledger().Len())
	_, ok := x.Ledger().Get("ETH")
	assert.False(t, ok)
	require.Len(t, d.entries, 1)
	assert.Equal(t, "reconcile_close", d.entries[0].Action)
	assert.Equal(t, "ETH", d.entries[0].Asset)
	assert.Equal(t, "no_position_no_orders", d.entries[0].Fields["reason"])
}

func TestReconcileIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	d := &fakeDiary{}
	x := newTestExecutor(gw, d)
	x.Ledger().Put(ActiveTrade{Asset: "ETH", IsLong: true, Amount: 1})

	require.NoError(t, x.Reconcile(context.Background()))
	require.NoError(t, x.Reconcile(context.Background()))

	assert.Equal(t, 0, x.Ledger().Len())
	assert.Len(t, d.entries, 1)
}

func TestReconcileEmptyLedgerSkipsExchangeReads(t *testing.T) {
	gw := &fakeGateway{}
	x := newTestExecutor(gw, &fakeDiary{})
	require.NoError(t, x.Reconcile(context.Background()))
	assert.Zero(t, gw.stateCalls)
	assert.Zero(t, gw.orderCalls)
}
