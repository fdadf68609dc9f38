package config

import "strings"

// Config 是 Helix 的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	Trading     TradingConfig     `toml:"trading"`
	AI          AIConfig          `toml:"ai"`
	Indicator   IndicatorConfig   `toml:"indicator"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Store       StoreConfig       `toml:"store"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
	LLMLog    string `toml:"llm_log_path"`
	LLMDump   bool   `toml:"llm_dump_payload"`
	DiaryPath string `toml:"diary_path"`
}

// TradingConfig 控制交易循环节奏与仓位风险参数。
type TradingConfig struct {
	Assets          []string `toml:"assets"`
	IntervalSeconds int      `toml:"interval_seconds"`
	BaseRiskPct     float64  `toml:"base_risk_pct"` // 单笔风险占账户净值比例 0~1
	SlippagePct     float64  `toml:"slippage_pct"`  // 市价单限价保护的滑点余量
	MinNotionalUSD  float64  `toml:"min_notional_usd"`
	RunImmediately  bool     `toml:"run_immediately"`
}

// NormalizedAssets 返回去重、去空白、统一大写后的交易标的列表。
func (t TradingConfig) NormalizedAssets() []string {
	out := make([]string, 0, len(t.Assets))
	seen := make(map[string]bool, len(t.Assets))
	for _, a := range t.Assets {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// AIConfig 包含决策模型接入的所有设置。
type AIConfig struct {
	APIURL           string `toml:"api_url"`
	APIKey           string `toml:"api_key"`
	Model            string `toml:"model"`
	SanitizeModel    string `toml:"sanitize_model"` // 清洗降级输出用的廉价模型
	Referer          string `toml:"referer"`
	AppTitle         string `toml:"app_title"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	ReasoningEnabled bool   `toml:"reasoning_enabled"`
	ReasoningEffort  string `toml:"reasoning_effort"`
	MaxToolRounds    int    `toml:"max_tool_rounds"`
}

// IndicatorConfig 描述 taapi.io 指标服务的访问方式。
type IndicatorConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Exchange       string `toml:"exchange"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RateLimitMS    int    `toml:"rate_limit_ms"`
}

// HyperliquidConfig 描述交易所网关的访问与签名身份。
type HyperliquidConfig struct {
	APIURL         string `toml:"api_url"`
	Network        string `toml:"network"` // "mainnet" | "testnet"
	PrivateKey     string `toml:"private_key"`
	WalletAddress  string `toml:"wallet_address"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (h HyperliquidConfig) IsMainnet() bool {
	return strings.ToLower(strings.TrimSpace(h.Network)) != "testnet"
}

type StoreConfig struct {
	DecisionLogPath string `toml:"decision_log_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
