package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"helix/internal/executor"
	"helix/internal/indicator"
	"helix/internal/logger"
	"helix/internal/types"
)

// marketGateway 是上下文构建所需的交易所只读视图。
type marketGateway interface {
	AccountState(ctx context.Context) (types.AccountSnapshot, []types.PositionSnapshot, error)
	OpenOrders(ctx context.Context) ([]types.OpenOrder, error)
	RecentFills(ctx context.Context, limit int) ([]types.Fill, error)
	MidPrice(ctx context.Context, symbol string) (float64, error)
	FundingAndOI(ctx context.Context, symbol string) (funding, openInterest float64, err error)
}

// indicatorSource 是对 taapi 客户端的依赖面。
type indicatorSource interface {
	FetchValue(ctx context.Context, name, symbol, interval string, params map[string]string) (float64, error)
	FetchSeriesKey(ctx context.Context, name, symbol, interval, key string, results int, params map[string]string) ([]float64, error)
}

type diaryReader interface {
	Recent(n int) ([]map[string]any, error)
}

// MarketContext 是喂给决策服务的每轮快照，构建后不再改动。
type MarketContext struct {
	Invocation   Invocation       `json:"invocation"`
	Account      Dashboard        `json:"account"`
	MarketData   []MarketSection  `json:"market_data"`
	Instructions map[string]any   `json:"instructions"`
}

type Invocation struct {
	MinutesSinceStart float64 `json:"minutes_since_start"`
	CurrentTime       string  `json:"current_time"`
	InvocationCount   int     `json:"invocation_count"`
}

type Dashboard struct {
	TotalReturnPct float64                  `json:"total_return_pct"`
	Balance        float64                  `json:"balance"`
	AccountValue   float64                  `json:"account_value"`
	SharpeRatio    float64                  `json:"sharpe_ratio"`
	Positions      []types.PositionSnapshot `json:"positions"`
	ActiveTrades   []executor.ActiveTrade   `json:"active_trades"`
	OpenOrders     []types.OpenOrder        `json:"open_orders"`
	RecentDiary    []map[string]any         `json:"recent_diary"`
	RecentFills    []types.Fill             `json:"recent_fills"`
}

type MarketSection struct {
	Asset                string         `json:"asset"`
	CurrentPrice         float64        `json:"current_price"`
	Intraday             IndicatorBlock `json:"intraday"`
	LongTerm             LongTermBlock  `json:"long_term"`
	OpenInterest         float64        `json:"open_interest"`
	FundingRate          float64        `json:"funding_rate"`
	FundingAnnualizedPct float64        `json:"funding_annualized_pct"`
	RecentMidPrices      []float64      `json:"recent_mid_prices"`
}

// IndicatorBlock 是 5m 周期的指标快照：末值 + 各自最近 10 根的序列。
type IndicatorBlock struct {
	EMA20  float64              `json:"ema20"`
	MACD   float64              `json:"macd"`
	RSI7   float64              `json:"rsi7"`
	RSI14  float64              `json:"rsi14"`
	OBV    float64              `json:"obv"`
	MFI    float64              `json:"mfi"`
	Series map[string][]float64 `json:"series"`
}

type LongTermBlock struct {
	EMA20      float64   `json:"ema20"`
	EMA50      float64   `json:"ema50"`
	ATR3       float64   `json:"atr3"`
	ATR14      float64   `json:"atr14"`
	MFI        float64   `json:"mfi"`
	MACDSeries []float64 `json:"macd_series"`
	RSISeries  []float64 `json:"rsi_series"`
	OBVSeries  []float64 `json:"obv_series"`
}

// ContextBuilder 逐轮累积状态（起始净值、价格环、轮次计数）并产出快照。
// 只被交易循环这一个 goroutine 驱动。
type ContextBuilder struct {
	gw     marketGateway
	ind    indicatorSource
	diary  diaryReader
	ledger *executor.Ledger
	assets []string

	startAt      time.Time
	invocations  int
	initialValue float64
	now          func() time.Time

	// 每资产的采集在本轮内并行，环形历史需要锁
	ringMu    sync.Mutex
	priceRing map[string][]float64
}

const priceRingCap = 60

func NewContextBuilder(gw marketGateway, ind indicatorSource, d diaryReader, ledger *executor.Ledger, assets []string) *ContextBuilder {
	return &ContextBuilder{
		gw:        gw,
		ind:       ind,
		diary:     d,
		ledger:    ledger,
		assets:    assets,
		startAt:   time.Now().UTC(),
		priceRing: make(map[string][]float64),
		now:       time.Now,
	}
}

// Build 产出本轮快照与各资产的周期内统一价格。
// 单个资产的数据采集失败只跳过该资产，不拖垮整轮。
func (b *ContextBuilder) Build(ctx context.Context) (*MarketContext, map[string]float64, error) {
	b.invocations++
	now := b.now().UTC()

	acct, positions, err := b.gw.AccountState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("读取账户状态: %w", err)
	}
	if b.initialValue == 0 {
		b.initialValue = acct.AccountValue
	}
	totalReturnPct := 0.0
	if b.initialValue > 0 {
		totalReturnPct = (acct.AccountValue - b.initialValue) / b.initialValue * 100
	}

	orders, err := b.gw.OpenOrders(ctx)
	if err != nil {
		logger.Warnf("context: 读取挂单失败: %v", err)
	}
	fills, err := b.gw.RecentFills(ctx, 20)
	if err != nil {
		logger.Warnf("context: 读取成交失败: %v", err)
	}
	recentDiary, err := b.diary.Recent(10)
	if err != nil {
		logger.Warnf("context: 读取日记失败: %v", err)
	}

	sections := make([]MarketSection, len(b.assets))
	ok := make([]bool, len(b.assets))
	prices := make(map[string]float64, len(b.assets))
	var pricesMu sync.Mutex

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(3)
	for i, asset := range b.assets {
		eg.Go(func() error {
			section, price, err := b.buildSection(gctx, asset)
			if err != nil {
				// 单资产失败只影响自己
				logger.Warnf("context: 采集 %s 市场数据失败: %v", asset, err)
				return nil
			}
			sections[i] = section
			ok[i] = true
			pricesMu.Lock()
			prices[asset] = price
			pricesMu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	marketData := make([]MarketSection, 0, len(sections))
	for i, s := range sections {
		if ok[i] {
			marketData = append(marketData, s)
		}
	}

	mc := &MarketContext{
		Invocation: Invocation{
			MinutesSinceStart: round2(now.Sub(b.startAt).Minutes()),
			CurrentTime:       now.Format(time.RFC3339),
			InvocationCount:   b.invocations,
		},
		Account: Dashboard{
			TotalReturnPct: round2(totalReturnPct),
			Balance:        round2(acct.Available),
			AccountValue:   round2(acct.AccountValue),
			SharpeRatio:    sharpeFromFills(fills),
			Positions:      positions,
			ActiveTrades:   b.ledger.All(),
			OpenOrders:     orders,
			RecentDiary:    recentDiary,
			RecentFills:    fills,
		},
		MarketData: marketData,
		Instructions: map[string]any{
			"assets":      b.assets,
			"requirement": "Decide actions for all assets and return a strict JSON object matching the schema.",
		},
	}
	return mc, prices, nil
}

// Document 把快照序列化成喂给模型的用户文档。
func (mc *MarketContext) Document() (string, error) {
	b, err := json.Marshal(mc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (b *ContextBuilder) buildSection(ctx context.Context, asset string) (MarketSection, float64, error) {
	price, err := b.gw.MidPrice(ctx, asset)
	if err != nil {
		return MarketSection{}, 0, err
	}
	b.pushPrice(asset, price)

	funding, oi, err := b.gw.FundingAndOI(ctx, asset)
	if err != nil {
		logger.Warnf("context: 读取 %s 资金费率失败: %v", asset, err)
	}

	pair := indicator.PairFor(asset)

	intraday := IndicatorBlock{Series: make(map[string][]float64)}
	for _, fetch := range []struct {
		name   string
		key    string
		params map[string]string
		last   *float64
		series string
	}{
		{"ema", "value", map[string]string{"period": "20"}, &intraday.EMA20, "ema20"},
		{"macd", "valueMACD", nil, &intraday.MACD, "macd"},
		{"rsi", "value", map[string]string{"period": "7"}, &intraday.RSI7, "rsi7"},
		{"rsi", "value", map[string]string{"period": "14"}, &intraday.RSI14, "rsi14"},
		{"obv", "value", nil, &intraday.OBV, "obv"},
		{"mfi", "value", map[string]string{"period": "14"}, &intraday.MFI, "mfi"},
	} {
		series, err := b.ind.FetchSeriesKey(ctx, fetch.name, pair, "5m", fetch.key, 10, fetch.params)
		if err != nil {
			logger.Debugf("context: %s %s 5m 序列缺失: %v", asset, fetch.name, err)
			continue
		}
		rounded := roundSeries(series)
		intraday.Series[fetch.series] = rounded
		if len(rounded) > 0 {
			*fetch.last = rounded[len(rounded)-1]
		}
	}

	longTerm := LongTermBlock{}
	for _, fetch := range []struct {
		name   string
		params map[string]string
		dst    *float64
	}{
		{"ema", map[string]string{"period": "20"}, &longTerm.EMA20},
		{"ema", map[string]string{"period": "50"}, &longTerm.EMA50},
		{"atr", map[string]string{"period": "3"}, &longTerm.ATR3},
		{"atr", map[string]string{"period": "14"}, &longTerm.ATR14},
		{"mfi", map[string]string{"period": "14"}, &longTerm.MFI},
	} {
		v, err := b.ind.FetchValue(ctx, fetch.name, pair, "4h", fetch.params)
		if err != nil {
			logger.Debugf("context: %s %s 4h 取值缺失: %v", asset, fetch.name, err)
			continue
		}
		*fetch.dst = round2(v)
	}
	if s, err := b.ind.FetchSeriesKey(ctx, "macd", pair, "4h", "valueMACD", 10, nil); err == nil {
		longTerm.MACDSeries = roundSeries(s)
	}
	if s, err := b.ind.FetchSeriesKey(ctx, "rsi", pair, "4h", "value", 10, map[string]string{"period": "14"}); err == nil {
		longTerm.RSISeries = roundSeries(s)
	}
	if s, err := b.ind.FetchSeriesKey(ctx, "obv", pair, "4h", "value", 10, nil); err == nil {
		longTerm.OBVSeries = roundSeries(s)
	}

	annualized := 0.0
	if funding != 0 {
		annualized = round2(funding * 24 * 365 * 100)
	}
	return MarketSection{
		Asset:                asset,
		CurrentPrice:         round2(price),
		Intraday:             intraday,
		LongTerm:             longTerm,
		OpenInterest:         round2(oi),
		FundingRate:          funding,
		FundingAnnualizedPct: annualized,
		RecentMidPrices:      b.recentPrices(asset, 10),
	}, price, nil
}

// pushPrice 维护每个资产的中间价环形历史。
func (b *ContextBuilder) pushPrice(asset string, price float64) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	ring := append(b.priceRing[asset], round2(price))
	if len(ring) > priceRingCap {
		ring = ring[len(ring)-priceRingCap:]
	}
	b.priceRing[asset] = ring
}

func (b *ContextBuilder) recentPrices(asset string, n int) []float64 {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	ring := b.priceRing[asset]
	if len(ring) > n {
		ring = ring[len(ring)-n:]
	}
	return append([]float64(nil), ring...)
}

// sharpeFromFills 用最近成交的已实现盈亏算一个朴素的夏普值。
func sharpeFromFills(fills []types.Fill) float64 {
	if len(fills) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fills {
		sum += f.ClosedPnl
	}
	mean := sum / float64(len(fills))
	var variance float64
	for _, f := range fills {
		d := f.ClosedPnl - mean
		variance += d * d
	}
	variance /= float64(len(fills))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return round3(mean / std)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func roundSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = round2(v)
	}
	return out
}
