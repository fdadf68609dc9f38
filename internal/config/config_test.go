package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfigYAML = `
app:
  log_level: debug
trading:
  assets: ["btc", "ETH", "eth"]
  interval_seconds: 600
ai:
  api_key: test-key
  model: deepseek/deepseek-chat-v3.1
indicator:
  api_key: taapi-key
hyperliquid:
  network: testnet
  private_key: "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultAppDiaryPath, cfg.App.DiaryPath)

	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Trading.NormalizedAssets())
	assert.Equal(t, 600, cfg.Trading.IntervalSeconds)
	assert.Equal(t, defaultTradingRiskPct, cfg.Trading.BaseRiskPct)
	assert.Equal(t, float64(defaultTradingMinUSD), cfg.Trading.MinNotionalUSD)

	assert.Equal(t, defaultAIURL, cfg.AI.APIURL)
	assert.Equal(t, defaultAIToolRounds, cfg.AI.MaxToolRounds)
	assert.True(t, cfg.AI.ReasoningEnabled)

	assert.Equal(t, defaultIndicatorExchange, cfg.Indicator.Exchange)
	assert.False(t, cfg.Hyperliquid.IsMainnet())
	assert.Equal(t, defaultDecisionLogPath, cfg.Store.DecisionLogPath)
}

func TestLoadMergesIncludedSecrets(t *testing.T) {
	dir := t.TempDir()

	secrets, err := yaml.Marshal(map[string]any{
		"ai": map[string]any{
			"api_key": "from-secrets",
		},
		"hyperliquid": map[string]any{
			"private_key": "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
		},
		"trading": map[string]any{
			"interval_seconds": 300,
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.yaml"), secrets, 0o600))

	main := `
include:
  - secrets.yaml
ai:
  model: deepseek/deepseek-chat-v3.1
trading:
  interval_seconds: 900
indicator:
  api_key: taapi-key
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(main), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-secrets", cfg.AI.APIKey)
	// 主文件的值覆盖 include 进来的值
	assert.Equal(t, 900, cfg.Trading.IntervalSeconds)
}

func TestLoadRejectsMissingModel(t *testing.T) {
	body := `
ai:
  api_key: k
indicator:
  api_key: k
hyperliquid:
  private_key: "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
`
	_, err := Load(writeTempConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.model")
}

func TestLoadRejectsBadPrivateKey(t *testing.T) {
	body := `
ai:
  api_key: k
  model: m
indicator:
  api_key: k
hyperliquid:
  private_key: "not-hex"
`
	_, err := Load(writeTempConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hyperliquid.private_key")
}
