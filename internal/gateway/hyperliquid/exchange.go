package hyperliquid

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"helix/internal/logger"
)

// 中文说明：
// /exchange 写操作。永续合约价格最多 5 位有效数字且小数位不超过 6-szDecimals，
// 数量精度为 szDecimals；线格式里价格与数量都是去掉尾零的十进制字符串。

var nonceMu sync.Mutex
var lastNonce int64

// nextNonce 以毫秒时间戳为 nonce，并保证单调递增。
func nextNonce() int64 {
	nonceMu.Lock()
	defer nonceMu.Unlock()
	n := time.Now().UnixMilli()
	if n <= lastNonce {
		n = lastNonce + 1
	}
	lastNonce = n
	return n
}

func floatToWire(x float64) string {
	return decimal.NewFromFloat(x).Round(8).String()
}

// roundPrice 按 5 位有效数字 + 最大小数位裁剪价格。
func roundPrice(px float64, szDecimals int) float64 {
	if px <= 0 {
		return px
	}
	sig, err := strconv.ParseFloat(strconv.FormatFloat(px, 'g', 5, 64), 64)
	if err != nil {
		sig = px
	}
	maxDecimals := 6 - szDecimals
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	out, _ := decimal.NewFromFloat(sig).Round(int32(maxDecimals)).Float64()
	return out
}

// RoundSize 把数量裁剪到资产的 szDecimals 精度（向下取整，避免超出可用保证金）。
func (c *Client) RoundSize(ctx context.Context, symbol string, size float64) (float64, error) {
	info, err := c.assetLookup(ctx, symbol)
	if err != nil {
		return 0, err
	}
	out, _ := decimal.NewFromFloat(size).RoundFloor(int32(info.SzDecimals)).Float64()
	return out, nil
}

// execAction 签名并提交一个 L1 action。
func (c *Client) execAction(ctx context.Context, name string, action any) (*ExchangeResponse, error) {
	var result *ExchangeResponse
	err := c.retry.run(ctx, name, func() error {
		nonce := nextNonce()
		sig, err := c.signer.signAction(action, nonce)
		if err != nil {
			return err
		}
		req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig, VaultAddress: nil}
		var raw []byte
		if err := c.postRaw(ctx, "/exchange", req, &raw); err != nil {
			return err
		}
		status := gjson.GetBytes(raw, "status").String()
		if status != "ok" {
			return &rejectError{Msg: gjson.GetBytes(raw, "response").String()}
		}
		var resp ExchangeResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		result = &resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarketOrder 以 IOC 限价单模拟市价成交，限价在中间价基础上放出滑点余量。
func (c *Client) MarketOrder(ctx context.Context, symbol string, isBuy bool, size, slippagePct float64) (*ExchangeResponse, error) {
	info, err := c.assetLookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	mid, err := c.MidPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	px := mid * (1 + slippagePct)
	if !isBuy {
		px = mid * (1 - slippagePct)
	}
	px = roundPrice(px, info.SzDecimals)
	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      info.Index,
			IsBuy:      isBuy,
			LimitPx:    floatToWire(px),
			Sz:         floatToWire(size),
			ReduceOnly: false,
			OrderType:  orderTypeWire{Limit: &limitWire{Tif: "Ioc"}},
		}},
		Grouping: "na",
	}
	logger.Infof("hyperliquid: 市价单 %s buy=%v size=%s limit=%s", symbol, isBuy, floatToWire(size), floatToWire(px))
	resp, err := c.execAction(ctx, "order", action)
	if err != nil {
		return nil, err
	}
	if msg := resp.FirstError(); msg != "" {
		return nil, &rejectError{Msg: msg}
	}
	return resp, nil
}

// PlaceTriggerOrder 挂 reduce-only 的 TP/SL 触发单；tpsl 为 "tp" 或 "sl"。
func (c *Client) PlaceTriggerOrder(ctx context.Context, symbol string, isBuy bool, size, triggerPx float64, tpsl string) (*ExchangeResponse, error) {
	info, err := c.assetLookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	px := roundPrice(triggerPx, info.SzDecimals)
	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      info.Index,
			IsBuy:      isBuy,
			LimitPx:    floatToWire(px),
			Sz:         floatToWire(size),
			ReduceOnly: true,
			OrderType: orderTypeWire{Trigger: &triggerWire{
				IsMarket:  true,
				TriggerPx: floatToWire(px),
				Tpsl:      tpsl,
			}},
		}},
		Grouping: "na",
	}
	logger.Infof("hyperliquid: %s 触发单 %s buy=%v size=%s trigger=%s", strings.ToUpper(tpsl), symbol, isBuy, floatToWire(size), floatToWire(px))
	resp, err := c.execAction(ctx, "order", action)
	if err != nil {
		return nil, err
	}
	if msg := resp.FirstError(); msg != "" {
		return nil, &rejectError{Msg: msg}
	}
	return resp, nil
}

// CancelOrders 批量撤单。
func (c *Client) CancelOrders(ctx context.Context, symbol string, oids []int64) error {
	if len(oids) == 0 {
		return nil
	}
	info, err := c.assetLookup(ctx, symbol)
	if err != nil {
		return err
	}
	cancels := make([]cancelWire, 0, len(oids))
	for _, oid := range oids {
		cancels = append(cancels, cancelWire{Asset: info.Index, Oid: oid})
	}
	action := cancelAction{Type: "cancel", Cancels: cancels}
	logger.Infof("hyperliquid: 撤单 %s oids=%v", symbol, oids)
	_, err = c.execAction(ctx, "cancel", action)
	return err
}

// UpdateLeverage 调整资产的全仓杠杆。
func (c *Client) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	info, err := c.assetLookup(ctx, symbol)
	if err != nil {
		return err
	}
	if info.MaxLev > 0 && leverage > info.MaxLev {
		leverage = info.MaxLev
	}
	action := leverageAction{Type: "updateLeverage", Asset: info.Index, IsCross: true, Leverage: leverage}
	logger.Infof("hyperliquid: 设置杠杆 %s %dx", symbol, leverage)
	_, err = c.execAction(ctx, "updateLeverage", action)
	return err
}

// FillsSince 返回指定时刻之后该资产的成交，用于下单后的成交确认轮询。
func (c *Client) FillsSince(ctx context.Context, symbol string, since time.Time) ([]float64, error) {
	fills, err := c.RecentFills(ctx, 50)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	var sizes []float64
	for _, f := range fills {
		if strings.ToUpper(f.Symbol) != symbol || f.Timestamp.Before(since) {
			continue
		}
		sizes = append(sizes, f.Size)
	}
	return sizes, nil
}
