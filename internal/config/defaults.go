package config

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "/data/logs/helix-live.log"
	defaultAppLLMLogPath     = "/data/logs/helix-llm.log"
	defaultAppDiaryPath      = "/data/live/diary.jsonl"
	defaultTradingInterval   = 10800
	defaultTradingRiskPct    = 0.01
	defaultTradingSlippage   = 0.005
	defaultTradingMinUSD     = 10
	defaultAIURL             = "https://openrouter.ai/api/v1"
	defaultAISanitizeModel   = "openai/gpt-4o-mini"
	defaultAITimeout         = 180
	defaultAIToolRounds      = 6
	defaultAIReasonEffort    = "high"
	defaultIndicatorURL      = "https://api.taapi.io"
	defaultIndicatorExchange = "binance"
	defaultIndicatorTimeout  = 10
	defaultIndicatorRateMS   = 1200
	defaultHyperliquidURL    = "https://api.hyperliquid.xyz"
	defaultHyperliquidNet    = "mainnet"
	defaultHyperliquidTO     = 15
	defaultDecisionLogPath   = "/data/live/decisions.db"
)

var defaultTradingAssets = []string{"BTC", "ETH", "SOL"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Indicator.applyDefaults(keys)
	c.Hyperliquid.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
		stringFieldDefault("app.diary_path", &a.DiaryPath, defaultAppDiaryPath),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	if len(t.Assets) == 0 {
		t.Assets = append([]string(nil), defaultTradingAssets...)
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trading.interval_seconds",
			need:  func() bool { return t.IntervalSeconds <= 0 },
			apply: func() { t.IntervalSeconds = defaultTradingInterval },
		},
		fieldDefault{
			key:   "trading.base_risk_pct",
			need:  func() bool { return t.BaseRiskPct <= 0 || t.BaseRiskPct > 1 },
			apply: func() { t.BaseRiskPct = defaultTradingRiskPct },
		},
		fieldDefault{
			key:   "trading.slippage_pct",
			need:  func() bool { return t.SlippagePct <= 0 },
			apply: func() { t.SlippagePct = defaultTradingSlippage },
		},
		fieldDefault{
			key:   "trading.min_notional_usd",
			need:  func() bool { return t.MinNotionalUSD <= 0 },
			apply: func() { t.MinNotionalUSD = defaultTradingMinUSD },
		},
		boolFieldDefault("trading.run_immediately", &t.RunImmediately, true),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.api_url", &a.APIURL, defaultAIURL),
		stringFieldDefault("ai.sanitize_model", &a.SanitizeModel, defaultAISanitizeModel),
		stringFieldDefault("ai.reasoning_effort", &a.ReasoningEffort, defaultAIReasonEffort),
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
		fieldDefault{
			key:   "ai.max_tool_rounds",
			need:  func() bool { return a.MaxToolRounds <= 0 },
			apply: func() { a.MaxToolRounds = defaultAIToolRounds },
		},
		boolFieldDefault("ai.reasoning_enabled", &a.ReasoningEnabled, true),
	)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("indicator.api_url", &i.APIURL, defaultIndicatorURL),
		stringFieldDefault("indicator.exchange", &i.Exchange, defaultIndicatorExchange),
		fieldDefault{
			key:   "indicator.timeout_seconds",
			need:  func() bool { return i.TimeoutSeconds <= 0 },
			apply: func() { i.TimeoutSeconds = defaultIndicatorTimeout },
		},
		fieldDefault{
			key:   "indicator.rate_limit_ms",
			need:  func() bool { return i.RateLimitMS < 0 },
			apply: func() { i.RateLimitMS = defaultIndicatorRateMS },
		},
	)
	if i.RateLimitMS == 0 {
		i.RateLimitMS = defaultIndicatorRateMS
	}
}

func (h *HyperliquidConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("hyperliquid.api_url", &h.APIURL, defaultHyperliquidURL),
		stringFieldDefault("hyperliquid.network", &h.Network, defaultHyperliquidNet),
		fieldDefault{
			key:   "hyperliquid.timeout_seconds",
			need:  func() bool { return h.TimeoutSeconds <= 0 },
			apply: func() { h.TimeoutSeconds = defaultHyperliquidTO },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.decision_log_path", &s.DecisionLogPath, defaultDecisionLogPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && *target == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
