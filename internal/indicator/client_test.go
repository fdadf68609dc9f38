package indicator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.IndicatorConfig{
		APIURL:         srv.URL,
		APIKey:         "secret-key",
		Exchange:       "binance",
		TimeoutSeconds: 5,
	})
}

func TestPairFor(t *testing.T) {
	assert.Equal(t, "BTC/USDT", PairFor("btc"))
	assert.Equal(t, "ETH/USDT", PairFor(" ETH "))
	assert.Equal(t, "SOL/USDC", PairFor("SOL/USDC"))
}

func TestFetchValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rsi", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "secret-key", q.Get("secret"))
		assert.Equal(t, "BTC/USDT", q.Get("symbol"))
		assert.Equal(t, "5m", q.Get("interval"))
		assert.Equal(t, "14", q.Get("period"))
		w.Write([]byte(`{"value": 61.42}`))
	})
	v, err := c.FetchValue(context.Background(), "rsi", "BTC", "5m", map[string]string{"period": "14"})
	require.NoError(t, err)
	assert.Equal(t, 61.42, v)
}

func TestFetchSeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("results"))
		w.Write([]byte(`{"value": [1.1, 2.2, 3.3]}`))
	})
	series, err := c.FetchSeries(context.Background(), "ema", "ETH", "4h", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.1, 2.2, 3.3}, series)
}

func TestFetchSeriesScalarFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value": 9.5}`))
	})
	series, err := c.FetchSeries(context.Background(), "atr", "SOL", "4h", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{9.5}, series)
}

func TestFetchRawErrorPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "indicator not found"}`))
	})
	_, err := c.FetchRaw(context.Background(), "bogus", "BTC", "1h", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indicator not found")
}

func TestFetchRawNon200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad secret"}`))
	})
	_, err := c.FetchRaw(context.Background(), "rsi", "BTC", "1h", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
