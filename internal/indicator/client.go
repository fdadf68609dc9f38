// Package indicator 封装 taapi.io 技术指标服务的访问。
// 指标取不到一律作为"无数据"处理，调用方不应因此中断整个周期。
package indicator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"helix/internal/config"
	"helix/internal/logger"
)

type Client struct {
	http     *resty.Client
	apiKey   string
	exchange string

	mu        sync.Mutex
	minDelay  time.Duration
	lastFetch time.Time
}

func NewClient(cfg config.IndicatorConfig) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == 429
		})
	return &Client{
		http:     rc,
		apiKey:   cfg.APIKey,
		exchange: cfg.Exchange,
		minDelay: time.Duration(cfg.RateLimitMS) * time.Millisecond,
	}
}

// PairFor 把资产代码映射为 taapi 的交易对写法。
func PairFor(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if strings.Contains(asset, "/") {
		return asset
	}
	return asset + "/USDT"
}

// FetchRaw 按原样返回指标响应 JSON，供工具调用直接回传给模型。
// params 中的键值会平铺为查询参数（period、backtrack、results 等）。
func (c *Client) FetchRaw(ctx context.Context, name, symbol, interval string, params map[string]string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("indicator name cannot be empty")
	}
	c.throttle()
	query := map[string]string{
		"secret":   c.apiKey,
		"exchange": c.exchange,
		"symbol":   PairFor(symbol),
		"interval": interval,
	}
	for k, v := range params {
		k = strings.TrimSpace(k)
		if k == "" || v == "" {
			continue
		}
		query[k] = v
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get("/" + name)
	if err != nil {
		return "", fmt.Errorf("indicator %s fetch failed: %w", name, err)
	}
	body := resp.String()
	if resp.StatusCode() != 200 {
		logger.Warnf("indicator: %s %s %s 返回 %d", name, symbol, interval, resp.StatusCode())
		return "", fmt.Errorf("indicator %s returned status %d: %s", name, resp.StatusCode(), truncate(body, 200))
	}
	if msg := gjson.Get(body, "error"); msg.Exists() && msg.String() != "" {
		return "", fmt.Errorf("indicator %s error payload: %s", name, msg.String())
	}
	return body, nil
}

// FetchValue 取单个标量指标值（响应中的 value 字段）。
func (c *Client) FetchValue(ctx context.Context, name, symbol, interval string, params map[string]string) (float64, error) {
	return c.FetchValueKey(ctx, name, symbol, interval, "value", params)
}

// FetchValueKey 同 FetchValue，但允许指定取值字段（如 MACD 的 valueMACD）。
func (c *Client) FetchValueKey(ctx context.Context, name, symbol, interval, key string, params map[string]string) (float64, error) {
	body, err := c.FetchRaw(ctx, name, symbol, interval, params)
	if err != nil {
		return 0, err
	}
	v := gjson.Get(body, key)
	if !v.Exists() {
		return 0, fmt.Errorf("indicator %s response missing %s: %s", name, key, truncate(body, 200))
	}
	return v.Float(), nil
}

// FetchSeries 取一段历史序列（results>1 时 taapi 返回 value 数组）。
func (c *Client) FetchSeries(ctx context.Context, name, symbol, interval string, results int, params map[string]string) ([]float64, error) {
	return c.FetchSeriesKey(ctx, name, symbol, interval, "value", results, params)
}

// FetchSeriesKey 同 FetchSeries，允许指定取值字段。
func (c *Client) FetchSeriesKey(ctx context.Context, name, symbol, interval, key string, results int, params map[string]string) ([]float64, error) {
	if results < 1 {
		results = 1
	}
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["results"] = fmt.Sprintf("%d", results)
	body, err := c.FetchRaw(ctx, name, symbol, interval, merged)
	if err != nil {
		return nil, err
	}
	v := gjson.Get(body, key)
	if !v.Exists() {
		return nil, fmt.Errorf("indicator %s response missing %s: %s", name, key, truncate(body, 200))
	}
	if !v.IsArray() {
		return []float64{v.Float()}, nil
	}
	arr := v.Array()
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		out = append(out, item.Float())
	}
	return out, nil
}

// throttle 保证相邻两次请求之间留出最小间隔，规避免费档限频。
func (c *Client) throttle() {
	if c.minDelay <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.minDelay - time.Since(c.lastFetch); wait > 0 {
		time.Sleep(wait)
	}
	c.lastFetch = time.Now()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
