package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/decision"
	"helix/internal/executor"
	"helix/internal/types"
)

type fakeMarket struct {
	account   types.AccountSnapshot
	positions []types.PositionSnapshot
	orders    []types.OpenOrder
	fills     []types.Fill
	mids      map[string]float64
	midErr    map[string]error
}

func (f *fakeMarket) AccountState(context.Context) (types.AccountSnapshot, []types.PositionSnapshot, error) {
	return f.account, f.positions, nil
}
func (f *fakeMarket) OpenOrders(context.Context) ([]types.OpenOrder, error) { return f.orders, nil }
func (f *fakeMarket) RecentFills(context.Context, int) ([]types.Fill, error) {
	return f.fills, nil
}
func (f *fakeMarket) MidPrice(_ context.Context, symbol string) (float64, error) {
	if err := f.midErr[symbol]; err != nil {
		return 0, err
	}
	return f.mids[symbol], nil
}
func (f *fakeMarket) FundingAndOI(context.Context, string) (float64, float64, error) {
	return 0.0001, 1234.5, nil
}

type fakeIndicatorSource struct{}

func (fakeIndicatorSource) FetchValue(context.Context, string, string, string, map[string]string) (float64, error) {
	return 42.5, nil
}

func (fakeIndicatorSource) FetchSeriesKey(context.Context, string, string, string, string, int, map[string]string) ([]float64, error) {
	return []float64{1.111, 2.222, 3.333}, nil
}

type fakeDiarySource struct{ entries []map[string]any }

func (f fakeDiarySource) Recent(int) ([]map[string]any, error) { return f.entries, nil }

func newTestBuilder(gw *fakeMarket, assets []string) *ContextBuilder {
	b := NewContextBuilder(gw, fakeIndicatorSource{}, fakeDiarySource{}, executor.NewLedger(), assets)
	b.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuildSnapshotShape(t *testing.T) {
	gw := &fakeMarket{
		account: types.AccountSnapshot{AccountValue: 10500, Available: 8000},
		fills:   []types.Fill{{Symbol: "BTC", ClosedPnl: 10}, {Symbol: "BTC", ClosedPnl: -5}},
		mids:    map[string]float64{"BTC": 43000, "ETH": 2200},
	}
	b := newTestBuilder(gw, []string{"BTC", "ETH"})

	mc, prices, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mc.Invocation.InvocationCount)
	assert.Len(t, mc.MarketData, 2)
	assert.Equal(t, 43000.0, prices["BTC"])
	// 首轮以当前净值为基准，回报为 0
	assert.Equal(t, 0.0, mc.Account.TotalReturnPct)

	doc, err := mc.Document()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &decoded))
	assert.Contains(t, decoded, "invocation")
	assert.Contains(t, decoded, "account")
	assert.Contains(t, decoded, "market_data")
	assert.Contains(t, decoded, "instructions")
}

func TestBuildTracksReturnAcrossCycles(t *testing.T) {
	gw := &fakeMarket{
		account: types.AccountSnapshot{AccountValue: 10000},
		mids:    map[string]float64{"BTC": 100},
	}
	b := newTestBuilder(gw, []string{"BTC"})

	_, _, err := b.Build(context.Background())
	require.NoError(t, err)
	gw.account.AccountValue = 11000
	mc, _, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mc.Invocation.InvocationCount)
	assert.InDelta(t, 10.0, mc.Account.TotalReturnPct, 1e-9)
}

func TestBuildSkipsFailedAsset(t *testing.T) {
	gw := &fakeMarket{
		account: types.AccountSnapshot{AccountValue: 10000},
		mids:    map[string]float64{"BTC": 100},
		midErr:  map[string]error{"ETH": assert.AnError},
	}
	b := newTestBuilder(gw, []string{"BTC", "ETH"})

	mc, prices, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, mc.MarketData, 1)
	assert.Equal(t, "BTC", mc.MarketData[0].Asset)
	_, ok := prices["ETH"]
	assert.False(t, ok)
}

func TestPriceRingKeepsRecentMids(t *testing.T) {
	gw := &fakeMarket{
		account: types.AccountSnapshot{AccountValue: 10000},
		mids:    map[string]float64{"BTC": 100},
	}
	b := newTestBuilder(gw, []string{"BTC"})
	for i := 0; i < 15; i++ {
		gw.mids["BTC"] = 100 + float64(i)
		_, _, err := b.Build(context.Background())
		require.NoError(t, err)
	}
	mc, _, err := b.Build(context.Background())
	require.NoError(t, err)
	mids := mc.MarketData[0].RecentMidPrices
	require.Len(t, mids, 10)
	assert.Equal(t, 114.0, mids[len(mids)-1])
}

func TestIsFailedResult(t *testing.T) {
	assets := []string{"BTC", "ETH"}
	assert.True(t, isFailedResult(nil, assets))
	assert.True(t, isFailedResult(&decision.Result{}, assets))
	assert.True(t, isFailedResult(decision.HoldAll(assets, "Parse error"), assets))
	assert.False(t, isFailedResult(decision.HoldAll(assets, "range-bound chop"), assets))
	assert.False(t, isFailedResult(&decision.Result{Decisions: []decision.TradeDecision{
		{Asset: "BTC", Action: decision.ActionBuy},
	}}, assets))
}
