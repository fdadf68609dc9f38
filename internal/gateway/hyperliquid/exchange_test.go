package hyperliquid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatToWire(t *testing.T) {
	assert.Equal(t, "0.5", floatToWire(0.5))
	assert.Equal(t, "100", floatToWire(100.0))
	assert.Equal(t, "0.001", floatToWire(0.001))
	assert.Equal(t, "43250.5", floatToWire(43250.50))
	assert.Equal(t, "0.12345679", floatToWire(0.123456789))
}

func TestRoundPrice(t *testing.T) {
	// BTC szDecimals=5：5 位有效数字，最多 1 位小数
	assert.Equal(t, 43251.0, roundPrice(43250.7222, 5))
	// ETH szDecimals=4：最多 2 位小数
	assert.Equal(t, 2345.6, roundPrice(2345.6111, 4))
	// 小价格币种保留有效数字
	assert.Equal(t, 0.12346, roundPrice(0.123456, 0))
	assert.Equal(t, 0.0, roundPrice(0, 5))
}

func TestActionHashDeterministic(t *testing.T) {
	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:     0,
			IsBuy:     true,
			LimitPx:   "43250.5",
			Sz:        "0.01",
			OrderType: orderTypeWire{Limit: &limitWire{Tif: "Ioc"}},
		}},
		Grouping: "na",
	}
	h1, err := actionHash(action, 1700000000000)
	require.NoError(t, err)
	h2, err := actionHash(action, 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := actionHash(action, 1700000000001)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestSignActionProducesRSV(t *testing.T) {
	sg, err := newSigner("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", true)
	require.NoError(t, err)
	assert.Equal(t, "a", sg.source)

	sig, err := sg.signAction(cancelAction{Type: "cancel", Cancels: []cancelWire{{Asset: 0, Oid: 123}}}, 1700000000000)
	require.NoError(t, err)
	assert.Len(t, sig.R, 66)
	assert.Len(t, sig.S, 66)
	assert.Contains(t, []uint8{27, 28}, sig.V)
}

func TestOrderWireJSONShape(t *testing.T) {
	w := orderWire{
		Asset:      3,
		IsBuy:      false,
		LimitPx:    "154.2",
		Sz:         "2.5",
		ReduceOnly: true,
		OrderType:  orderTypeWire{Trigger: &triggerWire{IsMarket: true, TriggerPx: "150", Tpsl: "sl"}},
	}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3,"b":false,"p":"154.2","s":"2.5","r":true,"t":{"trigger":{"isMarket":true,"triggerPx":"150","tpsl":"sl"}}}`, string(raw))
}

func TestExtractOIDsAndFirstError(t *testing.T) {
	var resp ExchangeResponse
	body := `{"status":"ok","response":{"type":"order","data":{"statuses":[
		{"resting":{"oid":101}},
		{"filled":{"oid":102,"totalSz":"0.01","avgPx":"43250.5"}},
		{"error":"Order must have minimum value of $10"}
	]}}}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, []int64{101, 102}, resp.ExtractOIDs())
	assert.Contains(t, resp.FirstError(), "minimum value")
}

func TestNextNonceMonotonic(t *testing.T) {
	a := nextNonce()
	b := nextNonce()
	assert.Greater(t, b, a)
}
