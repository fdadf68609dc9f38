package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/config"
)

const testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.HyperliquidConfig{
		APIURL:         srv.URL,
		Network:        "testnet",
		PrivateKey:     testKey,
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	c.retry.sleep = func(time.Duration) {}
	return c
}

func infoType(t *testing.T, r *http.Request) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	typ, _ := body["type"].(string)
	return typ
}

func TestAccountState(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		assert.Equal(t, "clearinghouseState", infoType(t, r))
		w.Write([]byte(`{
			"marginSummary": {"accountValue": "10000.5", "totalMarginUsed": "250.0"},
			"withdrawable": "9750.5",
			"assetPositions": [
				{"type":"oneWay","position":{"coin":"BTC","szi":"0.01","entryPx":"43000","unrealizedPnl":"2.5","liquidationPx":"39000","leverage":{"type":"cross","value":5},"marginUsed":"86"}},
				{"type":"oneWay","position":{"coin":"ETH","szi":"0","entryPx":"0"}}
			]
		}`))
	})
	account, positions, err := c.AccountState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.5, account.AccountValue)
	assert.Equal(t, 9750.5, account.Available)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Symbol)
	assert.Equal(t, 0.01, positions[0].Quantity)
	assert.True(t, positions[0].IsLong())
	assert.Equal(t, 5.0, positions[0].Leverage)
}

func TestOpenOrders(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"coin":"BTC","oid":42,"side":"A","sz":"0.01","limitPx":"45000","triggerPx":"45000","orderType":"Take Profit Market","reduceOnly":true,"isTrigger":true},
			{"coin":"BTC","oid":43,"side":"A","sz":"0.01","limitPx":"41000","triggerPx":"41000","orderType":"Stop Market","reduceOnly":true,"isTrigger":true}
		]`))
	})
	orders, err := c.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(42), orders[0].OrderID)
	assert.False(t, orders[0].IsBuy)
	assert.True(t, orders[0].IsTrigger())
	assert.True(t, orders[1].ReduceOnly)
}

func TestAllMidsSkipsSpotAliases(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"BTC":"43250.5","ETH":"2345.6","@107":"1.001"}`))
	})
	mids, err := c.AllMids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 43250.5, mids["BTC"])
	assert.NotContains(t, mids, "@107")
}

func TestAssetLookupCachesMeta(t *testing.T) {
	metaCalls := 0
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "meta", infoType(t, r))
		metaCalls++
		w.Write([]byte(`{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":40},{"name":"ETH","szDecimals":4,"maxLeverage":25}]}`))
	})
	info, err := c.assetLookup(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Index)
	assert.Equal(t, 4, info.SzDecimals)

	_, err = c.assetLookup(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, metaCalls)

	_, err = c.assetLookup(context.Background(), "DOGE")
	assert.Error(t, err)
}

func TestInfoRetriesOn500(t *testing.T) {
	calls := 0
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(500)
			return
		}
		w.Write([]byte(`{"BTC":"43250.5"}`))
	})
	mids, err := c.AllMids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 43250.5, mids["BTC"])
}

func TestExchangeRejectIsPolicy(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if infoType(t, r) == "meta" {
			w.Write([]byte(`{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":40}]}`))
			return
		}
		w.Write([]byte(`{"status":"err","response":"Invalid nonce"}`))
	})
	err := c.UpdateLeverage(context.Background(), "BTC", 5)
	require.Error(t, err)
	assert.Equal(t, KindPolicy, Classify(err))
	assert.Contains(t, err.Error(), "Invalid nonce")
}
