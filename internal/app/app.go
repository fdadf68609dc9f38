// Package app 负责应用级编排：装配依赖、驱动交易循环与巡检 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"helix/internal/config"
	"helix/internal/decision"
	"helix/internal/diary"
	"helix/internal/executor"
	"helix/internal/gateway/hyperliquid"
	"helix/internal/gateway/provider"
	"helix/internal/indicator"
	"helix/internal/logger"
	"helix/internal/scheduler"
	"helix/internal/store/decisionlog"
	livehttp "helix/internal/transport/http/live"
)

// App 持有全部已装配的组件。
type App struct {
	cfg *config.Config

	gateway *hyperliquid.Client
	engine  *decision.Engine
	exec    *executor.Executor
	builder *ContextBuilder
	journal *diary.Diary
	store   *decisionlog.Store
	httpSrv *livehttp.Server
	assets  []string
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	assets := cfg.Trading.NormalizedAssets()
	if len(assets) == 0 {
		return nil, fmt.Errorf("未配置交易资产")
	}

	gateway, err := hyperliquid.NewClient(cfg.Hyperliquid)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端: %w", err)
	}
	journal, err := diary.New(cfg.App.DiaryPath)
	if err != nil {
		return nil, fmt.Errorf("初始化交易日记: %w", err)
	}
	store, err := decisionlog.New(cfg.Store.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("初始化决策留档: %w", err)
	}

	indicators := indicator.NewClient(cfg.Indicator)
	providerClient := &provider.Client{
		BaseURL: cfg.AI.APIURL,
		APIKey:  cfg.AI.APIKey,
		Referer: cfg.AI.Referer,
		Title:   cfg.AI.AppTitle,
		Timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	}
	engine := &decision.Engine{
		Provider:   providerClient,
		Indicators: indicators,
		Cfg:        cfg.AI,
		OnRecord: func(rec decision.Record) {
			if _, err := store.InsertEngineRecord(context.Background(), rec); err != nil {
				logger.Warnf("app: 决策留档写入失败: %v", err)
			}
		},
	}

	exec := executor.New(gateway, executor.NewLedger(), journal,
		cfg.Trading.BaseRiskPct, cfg.Trading.SlippagePct, cfg.Trading.MinNotionalUSD)
	builder := NewContextBuilder(gateway, indicators, journal, exec.Ledger(), assets)

	httpSrv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Diary:     journal,
		Decisions: store,
		LogPaths: map[string]string{
			"live": cfg.App.LogPath,
			"llm":  cfg.App.LLMLog,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化巡检 HTTP: %w", err)
	}

	return &App{
		cfg:     cfg,
		gateway: gateway,
		engine:  engine,
		exec:    exec,
		builder: builder,
		journal: journal,
		store:   store,
		httpSrv: httpSrv,
		assets:  assets,
	}, nil
}

// Run 启动巡检 HTTP 与交易循环，阻塞直至 ctx 取消或任一组件失败。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	logger.Infof("app: 启动，assets=%v interval=%ds network=%s",
		a.assets, a.cfg.Trading.IntervalSeconds, a.cfg.Hyperliquid.Network)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		sched := scheduler.NewIntervalScheduler(ctx,
			time.Duration(a.cfg.Trading.IntervalSeconds)*time.Second)
		sched.Name = "trading"
		sched.RunImmediately = a.cfg.Trading.RunImmediately
		sched.Start(func() { a.runCycle(ctx) })
		return nil
	})
	return group.Wait()
}

// runCycle 跑一轮完整决策：对账 → 快照 → 决策 → 逐资产执行。
// 任何一步失败只结束本轮，循环继续。
func (a *App) runCycle(ctx context.Context) {
	if err := a.exec.Reconcile(ctx); err != nil {
		logger.Errorf("app: 对账失败，跳过本轮: %v", err)
		return
	}

	mc, prices, err := a.builder.Build(ctx)
	if err != nil {
		logger.Errorf("app: 构建市场上下文失败，跳过本轮: %v", err)
		return
	}
	doc, err := mc.Document()
	if err != nil {
		logger.Errorf("app: 序列化市场上下文失败: %v", err)
		return
	}
	logger.Infof("app: 上下文 %d 字符，覆盖 %d/%d 个资产", len(doc), len(mc.MarketData), len(a.assets))

	result := a.engine.Decide(ctx, a.assets, doc)
	if isFailedResult(result, a.assets) {
		// 解析兜底的 hold 往往是输出夹带散文导致的，换个更严的指令再试一次
		logger.Warnf("app: 决策疑似解析兜底，附加严格指令重试一次")
		retryDoc := `{"retry_instruction":"Return ONLY the JSON object per schema with no prose.","original_context":` + doc + `}`
		result = a.engine.Decide(ctx, a.assets, retryDoc)
	}
	if result.Reasoning != "" {
		logger.Infof("app: 决策推理: %s", truncateForLog(result.Reasoning, 500))
	}

	result.FilterAssets(a.assets)
	acct, _, err := a.gateway.AccountState(ctx)
	if err != nil {
		logger.Errorf("app: 执行前读取账户失败，跳过执行: %v", err)
		return
	}
	for _, d := range result.Decisions {
		// 模型看到什么价，就按什么价定量与记账
		if err := a.exec.Execute(ctx, d, acct, prices[d.Asset]); err != nil {
			// 单资产失败不阻塞同轮的其余资产
			logger.Errorf("app: 执行 %s/%s 失败: %v", d.Asset, d.Action, err)
		}
	}
}

// isFailedResult 识别"空决策集或全是解析兜底 hold"的结果。
func isFailedResult(r *decision.Result, assets []string) bool {
	if r == nil || len(r.Decisions) == 0 {
		return true
	}
	for _, d := range r.Decisions {
		if d.Action != decision.ActionHold {
			return false
		}
		if !strings.Contains(strings.ToLower(d.Rationale), "parse error") {
			return false
		}
	}
	return len(r.Decisions) >= len(assets)
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
