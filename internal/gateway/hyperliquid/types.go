package hyperliquid

// 中文说明：
// Hyperliquid /info 与 /exchange 的线格式。
// /exchange 的 action 会先经 msgpack 编码参与签名哈希，服务端按固定字段序
// 重新编码校验，因此这里的结构体字段顺序不能调整。

type marginSummary struct {
	AccountValue   string `json:"accountValue"`
	TotalNtlPos    string `json:"totalNtlPos"`
	TotalRawUsd    string `json:"totalRawUsd"`
	TotalMarginUsd string `json:"totalMarginUsed"`
}

type assetPosition struct {
	Position struct {
		Coin           string `json:"coin"`
		Szi            string `json:"szi"`
		EntryPx        string `json:"entryPx"`
		PositionValue  string `json:"positionValue"`
		UnrealizedPnl  string `json:"unrealizedPnl"`
		ReturnOnEquity string `json:"returnOnEquity"`
		LiquidationPx  string `json:"liquidationPx"`
		MarginUsed     string `json:"marginUsed"`
		Leverage       struct {
			Type  string  `json:"type"`
			Value float64 `json:"value"`
		} `json:"leverage"`
	} `json:"position"`
	Type string `json:"type"`
}

type clearinghouseState struct {
	MarginSummary  marginSummary   `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
	AssetPositions []assetPosition `json:"assetPositions"`
}

type frontendOpenOrder struct {
	Coin       string `json:"coin"`
	Oid        int64  `json:"oid"`
	Side       string `json:"side"` // "B" 买 / "A" 卖
	Sz         string `json:"sz"`
	LimitPx    string `json:"limitPx"`
	TriggerPx  string `json:"triggerPx"`
	OrderType  string `json:"orderType"`
	ReduceOnly bool   `json:"reduceOnly"`
	IsTrigger  bool   `json:"isTrigger"`
	Timestamp  int64  `json:"timestamp"`
}

type userFill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      int64  `json:"time"`
	ClosedPnl string `json:"closedPnl"`
	Fee       string `json:"fee"`
	Oid       int64  `json:"oid"`
}

type metaAsset struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
	MaxLev     int    `json:"maxLeverage"`
}

type metaResponse struct {
	Universe []metaAsset `json:"universe"`
}

// assetInfo 是 meta 缓存中的条目。
type assetInfo struct {
	Index      int
	SzDecimals int
	MaxLev     int
}

// ---- /exchange action 线格式（字段顺序即签名顺序） ----

type limitWire struct {
	Tif string `json:"tif" msgpack:"tif"`
}

type triggerWire struct {
	IsMarket  bool   `json:"isMarket" msgpack:"isMarket"`
	TriggerPx string `json:"triggerPx" msgpack:"triggerPx"`
	Tpsl      string `json:"tpsl" msgpack:"tpsl"`
}

type orderTypeWire struct {
	Limit   *limitWire   `json:"limit,omitempty" msgpack:"limit,omitempty"`
	Trigger *triggerWire `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
}

type orderWire struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	LimitPx    string        `json:"p" msgpack:"p"`
	Sz         string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	OrderType  orderTypeWire `json:"t" msgpack:"t"`
}

type orderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []orderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

type cancelWire struct {
	Asset int   `json:"a" msgpack:"a"`
	Oid   int64 `json:"o" msgpack:"o"`
}

type cancelAction struct {
	Type    string       `json:"type" msgpack:"type"`
	Cancels []cancelWire `json:"cancels" msgpack:"cancels"`
}

type leverageAction struct {
	Type     string `json:"type" msgpack:"type"`
	Asset    int    `json:"asset" msgpack:"asset"`
	IsCross  bool   `json:"isCross" msgpack:"isCross"`
	Leverage int    `json:"leverage" msgpack:"leverage"`
}

type signatureWire struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

type exchangeRequest struct {
	Action       any           `json:"action"`
	Nonce        int64         `json:"nonce"`
	Signature    signatureWire `json:"signature"`
	VaultAddress *string       `json:"vaultAddress"`
}

// ExchangeResponse 是 /exchange 的应答；Status != "ok" 时 Err 携带错误文本。
type ExchangeResponse struct {
	Status   string `json:"status"`
	Err      string `json:"-"`
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []orderStatus `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

type orderStatus struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		Oid     int64  `json:"oid"`
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// ExtractOIDs 收集应答中成功下单的订单号（resting 或 filled）。
func (r *ExchangeResponse) ExtractOIDs() []int64 {
	var oids []int64
	for _, st := range r.Response.Data.Statuses {
		switch {
		case st.Resting != nil:
			oids = append(oids, st.Resting.Oid)
		case st.Filled != nil:
			oids = append(oids, st.Filled.Oid)
		}
	}
	return oids
}

// FirstError 返回应答中第一条订单级错误。
func (r *ExchangeResponse) FirstError() string {
	for _, st := range r.Response.Data.Statuses {
		if st.Error != "" {
			return st.Error
		}
	}
	return ""
}
