// Package hyperliquid 实现交易所网关：/info 读取、带签名的 /exchange 写入，
// 以及统一的错误分类与重试包装。
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"helix/internal/config"
	"helix/internal/logger"
	"helix/internal/types"
)

type Client struct {
	baseURL string
	address string
	timeout time.Duration
	signer  *signer
	retry   retryPolicy

	mu    sync.Mutex
	httpc *http.Client

	metaMu    sync.Mutex
	metaCache map[string]assetInfo
}

func NewClient(cfg config.HyperliquidConfig) (*Client, error) {
	sg, err := newSigner(cfg.PrivateKey, cfg.IsMainnet())
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(cfg.WalletAddress)
	if address == "" {
		// 未显式配置主钱包地址时，默认签名私钥即主账户
		address = sg.address.Hex()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		address: address,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		signer:  sg,
	}
	c.retry = retryPolicy{reset: c.resetHTTP}
	return c, nil
}

// Address 返回查询账户状态所用的钱包地址。
func (c *Client) Address() string { return c.address }

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: c.timeout}
	}
	return c.httpc
}

// resetHTTP 丢弃现有连接池，用于重试前重建客户端。
func (c *Client) resetHTTP() {
	c.mu.Lock()
	if c.httpc != nil {
		c.httpc.CloseIdleConnections()
	}
	c.httpc = &http.Client{Timeout: c.timeout}
	c.mu.Unlock()
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request failed: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// postRaw 与 post 相同，但把原始应答字节交给调用方自行解析。
func (c *Client) postRaw(ctx context.Context, path string, body any, out *[]byte) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request failed: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	*out = raw
	return nil
}

func (c *Client) info(ctx context.Context, body map[string]any, out any) error {
	return c.retry.run(ctx, body["type"].(string), func() error {
		return c.post(ctx, "/info", body, out)
	})
}

// AccountState 返回账户净值/可用余额与全部持仓快照。
func (c *Client) AccountState(ctx context.Context) (types.AccountSnapshot, []types.PositionSnapshot, error) {
	var state clearinghouseState
	if err := c.info(ctx, map[string]any{"type": "clearinghouseState", "user": c.address}, &state); err != nil {
		return types.AccountSnapshot{}, nil, err
	}
	account := types.AccountSnapshot{
		AccountValue: parseFloat(state.MarginSummary.AccountValue),
		Available:    parseFloat(state.Withdrawable),
		MarginUsed:   parseFloat(state.MarginSummary.TotalMarginUsd),
		UpdatedAt:    time.Now().UTC(),
	}
	positions := make([]types.PositionSnapshot, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		szi := parseFloat(ap.Position.Szi)
		if szi == 0 {
			continue
		}
		positions = append(positions, types.PositionSnapshot{
			Symbol:           ap.Position.Coin,
			Quantity:         szi,
			EntryPrice:       parseFloat(ap.Position.EntryPx),
			LiquidationPrice: parseFloat(ap.Position.LiquidationPx),
			UnrealizedPnl:    parseFloat(ap.Position.UnrealizedPnl),
			ReturnOnEquity:   parseFloat(ap.Position.ReturnOnEquity),
			Leverage:         ap.Position.Leverage.Value,
			MarginUsed:       parseFloat(ap.Position.MarginUsed),
		})
	}
	return account, positions, nil
}

// OpenOrders 返回全部挂单（含 TP/SL 触发单）。
func (c *Client) OpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	var raw []frontendOpenOrder
	if err := c.info(ctx, map[string]any{"type": "frontendOpenOrders", "user": c.address}, &raw); err != nil {
		return nil, err
	}
	orders := make([]types.OpenOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, types.OpenOrder{
			Symbol:       o.Coin,
			OrderID:      o.Oid,
			IsBuy:        o.Side == "B",
			Size:         parseFloat(o.Sz),
			LimitPrice:   parseFloat(o.LimitPx),
			TriggerPrice: parseFloat(o.TriggerPx),
			OrderType:    o.OrderType,
			ReduceOnly:   o.ReduceOnly,
		})
	}
	return orders, nil
}

// RecentFills 返回最近成交，按时间倒序，最多 limit 条。
func (c *Client) RecentFills(ctx context.Context, limit int) ([]types.Fill, error) {
	var raw []userFill
	if err := c.info(ctx, map[string]any{"type": "userFills", "user": c.address}, &raw); err != nil {
		return nil, err
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].Time > raw[j].Time })
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	fills := make([]types.Fill, 0, len(raw))
	for _, f := range raw {
		fills = append(fills, types.Fill{
			Symbol:    f.Coin,
			Timestamp: time.UnixMilli(f.Time).UTC(),
			IsBuy:     f.Side == "B",
			Size:      parseFloat(f.Sz),
			Price:     parseFloat(f.Px),
			ClosedPnl: parseFloat(f.ClosedPnl),
			Fee:       parseFloat(f.Fee),
		})
	}
	return fills, nil
}

// AllMids 返回全市场中间价（symbol → 价格）。
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.info(ctx, map[string]any{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}
	mids := make(map[string]float64, len(raw))
	for coin, px := range raw {
		if strings.HasPrefix(coin, "@") {
			continue // 现货索引别名
		}
		mids[coin] = parseFloat(px)
	}
	return mids, nil
}

// MidPrice 返回单个资产的中间价。
func (c *Client) MidPrice(ctx context.Context, symbol string) (float64, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return 0, err
	}
	px, ok := mids[strings.ToUpper(symbol)]
	if !ok || px <= 0 {
		return 0, fmt.Errorf("no mid price for %s", symbol)
	}
	return px, nil
}

// FundingAndOI 返回资产当前的资金费率与未平仓量。
func (c *Client) FundingAndOI(ctx context.Context, symbol string) (funding, openInterest float64, err error) {
	var raw []json.RawMessage
	if err := c.info(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return 0, 0, err
	}
	if len(raw) < 2 {
		return 0, 0, fmt.Errorf("metaAndAssetCtxs response malformed")
	}
	var meta metaResponse
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return 0, 0, err
	}
	var ctxs []struct {
		Funding      string `json:"funding"`
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return 0, 0, err
	}
	symbol = strings.ToUpper(symbol)
	for i, asset := range meta.Universe {
		if asset.Name == symbol && i < len(ctxs) {
			return parseFloat(ctxs[i].Funding), parseFloat(ctxs[i].OpenInterest), nil
		}
	}
	return 0, 0, fmt.Errorf("asset %s not in universe", symbol)
}

// assetLookup 返回资产的 universe 下标与精度，meta 只拉一次后缓存。
func (c *Client) assetLookup(ctx context.Context, symbol string) (assetInfo, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c.metaMu.Lock()
	cached := c.metaCache
	c.metaMu.Unlock()
	if cached != nil {
		if info, ok := cached[symbol]; ok {
			return info, nil
		}
	}
	var meta metaResponse
	if err := c.info(ctx, map[string]any{"type": "meta"}, &meta); err != nil {
		return assetInfo{}, err
	}
	table := make(map[string]assetInfo, len(meta.Universe))
	for i, asset := range meta.Universe {
		table[strings.ToUpper(asset.Name)] = assetInfo{Index: i, SzDecimals: asset.SzDecimals, MaxLev: asset.MaxLev}
	}
	c.metaMu.Lock()
	c.metaCache = table
	c.metaMu.Unlock()
	info, ok := table[symbol]
	if !ok {
		return assetInfo{}, fmt.Errorf("asset %s not in universe", symbol)
	}
	logger.Debugf("hyperliquid: meta 缓存了 %d 个资产", len(table))
	return info, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
