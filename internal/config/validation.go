package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Indicator.validate(); err != nil {
		return err
	}
	if err := c.Hyperliquid.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.NormalizedAssets()) == 0 {
		return fmt.Errorf("trading.assets requires at least one asset")
	}
	if t.IntervalSeconds < 60 {
		return fmt.Errorf("trading.interval_seconds must be >= 60")
	}
	if t.BaseRiskPct <= 0 || t.BaseRiskPct > 1 {
		return fmt.Errorf("trading.base_risk_pct must be in (0, 1]")
	}
	if t.SlippagePct <= 0 || t.SlippagePct > 0.2 {
		return fmt.Errorf("trading.slippage_pct must be in (0, 0.2]")
	}
	if t.MinNotionalUSD <= 0 {
		return fmt.Errorf("trading.min_notional_usd must be > 0")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if strings.TrimSpace(a.APIURL) == "" {
		return fmt.Errorf("ai.api_url cannot be empty")
	}
	if strings.TrimSpace(a.APIKey) == "" {
		return fmt.Errorf("ai.api_key cannot be empty")
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if a.MaxToolRounds <= 0 {
		return fmt.Errorf("ai.max_tool_rounds must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(a.ReasoningEffort)) {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("ai.reasoning_effort only supports low/medium/high, got %s", a.ReasoningEffort)
	}
	return nil
}

func (i *IndicatorConfig) validate() error {
	if strings.TrimSpace(i.APIURL) == "" {
		return fmt.Errorf("indicator.api_url cannot be empty")
	}
	if strings.TrimSpace(i.APIKey) == "" {
		return fmt.Errorf("indicator.api_key cannot be empty")
	}
	return nil
}

func (h *HyperliquidConfig) validate() error {
	if strings.TrimSpace(h.APIURL) == "" {
		return fmt.Errorf("hyperliquid.api_url cannot be empty")
	}
	switch strings.ToLower(strings.TrimSpace(h.Network)) {
	case "mainnet", "testnet":
	default:
		return fmt.Errorf("hyperliquid.network only supports mainnet/testnet, got %s", h.Network)
	}
	key := strings.TrimSpace(h.PrivateKey)
	if key == "" {
		return fmt.Errorf("hyperliquid.private_key cannot be empty")
	}
	hexKey := strings.TrimPrefix(key, "0x")
	if len(hexKey) != 64 {
		return fmt.Errorf("hyperliquid.private_key must be a 32-byte hex string")
	}
	if addr := strings.TrimSpace(h.WalletAddress); addr != "" {
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
			return fmt.Errorf("hyperliquid.wallet_address must be a 0x-prefixed address")
		}
	}
	return nil
}
