// Package decision 实现决策服务客户端：带工具调用回路、结构化输出、
// 能力降级与清洗兜底的多轮协议。对调用方而言 Decide 永不失败——
// 任何故障最终都收敛为 hold 决策集。
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"helix/internal/config"
	"helix/internal/gateway/provider"
	"helix/internal/logger"
	"helix/internal/pkg/convert"
)

// ChatCaller 是引擎对模型服务的最小依赖，便于测试替换。
type ChatCaller interface {
	CreateChatCompletion(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error)
}

// IndicatorFetcher 执行模型发起的指标工具调用。
type IndicatorFetcher interface {
	FetchRaw(ctx context.Context, name, symbol, interval string, params map[string]string) (string, error)
}

// Record 是一次模型交互的留档，交由外部持久化。
type Record struct {
	TraceID    string
	Stage      string // "main" | "sanitizer"
	Model      string
	System     string
	User       string
	RawOutput  string
	ParseError string
	Result     *Result
}

type Engine struct {
	Provider   ChatCaller
	Indicators IndicatorFetcher
	Cfg        config.AIConfig
	// OnRecord 可选；设置后每轮终态解析都会上报一条 Record。
	OnRecord func(Record)
}

// Decide 对一组资产做一次完整决策。协议：
//  1. 带工具定义与 schema 约束发起请求；
//  2. 模型要求工具调用则逐个执行并续写对话；
//  3. 服务端拒绝工具/结构化输出时降级该能力后重试本轮；
//  4. 终态回复解析失败依次走清洗通道、hold 兜底；
//  5. 轮次耗尽返回统一 hold（"tool loop cap"）。
func (e *Engine) Decide(ctx context.Context, assets []string, contextDoc string) *Result {
	traceID := uuid.NewString()
	system := systemPrompt(assets)
	messages := []provider.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: contextDoc},
	}
	allowTools := true
	allowStructured := true
	maxRounds := e.Cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 6
	}

	for round := 1; round <= maxRounds; round++ {
		req := provider.ChatRequest{Model: e.Cfg.Model, Messages: messages}
		if allowStructured {
			req.ResponseFormat = &provider.ResponseFormat{
				Type: "json_schema",
				JSONSchema: &provider.JSONSchemaSpec{
					Name:   "trade_decisions",
					Strict: true,
					Schema: buildDecisionSchema(assets),
				},
			}
		}
		if allowTools {
			req.Tools = []provider.Tool{indicatorTool()}
			req.ToolChoice = "auto"
		}
		if e.Cfg.ReasoningEnabled {
			req.Reasoning = &provider.Reasoning{Enabled: true, Effort: e.Cfg.ReasoningEffort}
		}
		logPayload, _ := json.Marshal(req)
		logger.LogLLMRequest(e.Cfg.Model, "main", "", string(logPayload))

		resp, err := e.Provider.CreateChatCompletion(ctx, req)
		if err != nil {
			var herr *provider.HTTPError
			if errors.As(err, &herr) {
				if allowTools && rejectsToolSchema(herr) {
					logger.Warnf("decision: 服务端拒绝工具 schema，去掉 tools 重试本轮")
					allowTools = false
					continue
				}
				if allowStructured && rejectsStructuredOutput(herr) {
					logger.Warnf("decision: 服务端拒绝结构化输出，去掉 response_format 重试本轮")
					allowStructured = false
					continue
				}
			}
			logger.Errorf("decision: 模型调用失败: %v", err)
			result := HoldAll(assets, "decision service error")
			e.record(Record{TraceID: traceID, Stage: "main", Model: e.Cfg.Model, System: system, User: contextDoc, ParseError: err.Error(), Result: result})
			return result
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)
		logger.LogLLMResponse(e.Cfg.Model, "main", msg.Content)

		if allowTools && len(msg.ToolCalls) > 0 {
			// 工具轮：执行后续写对话，不做终态解析
			for _, tc := range msg.ToolCalls {
				messages = append(messages, e.runToolCall(ctx, tc))
			}
			continue
		}

		result, perr := ParseResult(msg.Content)
		if perr == nil {
			logger.Infof("decision: 解析到 %d 条决策", len(result.Decisions))
			e.record(Record{TraceID: traceID, Stage: "main", Model: e.Cfg.Model, System: system, User: contextDoc, RawOutput: msg.Content, Result: result})
			return result
		}

		logger.Warnf("decision: 终态解析失败（%v），进入清洗通道", perr)
		if sanitized := e.sanitize(ctx, traceID, assets, msg.Content); sanitized != nil && len(sanitized.Decisions) > 0 {
			return sanitized
		}
		var fallback *Result
		if errors.Is(perr, errMissingDecisions) {
			// 结构合法但缺少决策列表：按空决策集处理
			fallback = &Result{Reasoning: result.Reasoning}
		} else {
			fallback = HoldAll(assets, "Parse error")
		}
		e.record(Record{TraceID: traceID, Stage: "main", Model: e.Cfg.Model, System: system, User: contextDoc, RawOutput: msg.Content, ParseError: perr.Error(), Result: fallback})
		return fallback
	}

	result := HoldAll(assets, "tool loop cap")
	e.record(Record{TraceID: traceID, Stage: "main", Model: e.Cfg.Model, System: system, User: contextDoc, ParseError: "tool loop cap", Result: result})
	return result
}

// rejectsToolSchema 识别 xAI 对工具 schema 的反序列化拒绝（422 + "deserialize"）。
func rejectsToolSchema(herr *provider.HTTPError) bool {
	if herr.Status != 422 {
		return false
	}
	providerName := gjson.Get(herr.Body, "error.metadata.provider_name").String()
	raw := gjson.Get(herr.Body, "error.metadata.raw").String()
	return strings.HasPrefix(strings.ToLower(providerName), "xai") &&
		strings.Contains(strings.ToLower(raw), "deserialize")
}

// rejectsStructuredOutput 识别服务端不支持 response_format 的拒绝。
func rejectsStructuredOutput(herr *provider.HTTPError) bool {
	if herr.Status == 400 || herr.Status == 422 {
		return true
	}
	return strings.Contains(herr.Body, "response_format") || strings.Contains(herr.Body, "structured")
}

func (e *Engine) runToolCall(ctx context.Context, tc provider.ToolCall) provider.ChatMessage {
	reply := provider.ChatMessage{Role: "tool", ToolCallID: tc.ID, Name: toolFetchIndicator}
	if tc.Type != "function" || tc.Function.Name != toolFetchIndicator {
		reply.Content = "Error: unsupported tool " + tc.Function.Name
		return reply
	}
	args, err := tc.ParsedArguments()
	if err != nil {
		reply.Content = "Error: " + err.Error()
		return reply
	}
	name := convert.ToString(args["indicator"])
	symbol := convert.ToString(args["symbol"])
	interval := convert.ToString(args["interval"])
	params := map[string]string{}
	if v, ok := args["period"]; ok && v != nil {
		params["period"] = convert.ToString(v)
	}
	if v, ok := args["backtrack"]; ok && v != nil {
		params["backtrack"] = convert.ToString(v)
	}
	if extra, ok := args["other_params"].(map[string]any); ok {
		for k, v := range extra {
			params[k] = convert.ToString(v)
		}
	}
	logger.Debugf("decision: 工具调用 %s(%s, %s, %s)", toolFetchIndicator, name, symbol, interval)
	body, err := e.Indicators.FetchRaw(ctx, name, symbol, interval, params)
	if err != nil {
		// 工具失败不终止回路，把错误文本交还给模型
		reply.Content = "Error: " + err.Error()
		return reply
	}
	reply.Content = body
	return reply
}

// sanitize 让廉价模型在严格 schema 约束下重写坏输出；失败返回 nil。
func (e *Engine) sanitize(ctx context.Context, traceID string, assets []string, raw string) *Result {
	temperature := 0.0
	sysPrompt := "You are a strict JSON normalizer. Return ONLY a JSON object matching the provided JSON Schema. " +
		"If input is wrapped or has prose/markdown, fix it. Do not add fields."
	req := provider.ChatRequest{
		Model: e.Cfg.SanitizeModel,
		Messages: []provider.ChatMessage{
			{Role: "system", Content: sysPrompt},
			{Role: "user", Content: raw},
		},
		ResponseFormat: &provider.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &provider.JSONSchemaSpec{
				Name:   "trade_decisions",
				Strict: true,
				Schema: buildDecisionSchema(assets),
			},
		},
		Temperature: &temperature,
	}
	logPayload, _ := json.Marshal(req)
	logger.LogLLMRequest(e.Cfg.SanitizeModel, "sanitizer", "", string(logPayload))

	resp, err := e.Provider.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.Errorf("decision: 清洗调用失败: %v", err)
		e.record(Record{TraceID: traceID, Stage: "sanitizer", Model: e.Cfg.SanitizeModel, User: raw, ParseError: err.Error()})
		return nil
	}
	content := resp.Choices[0].Message.Content
	logger.LogLLMResponse(e.Cfg.SanitizeModel, "sanitizer", content)

	// 清洗通道的产出必须先过本地 schema 校验，不合格的一律弃用，
	// 交由调用方走 hold 兜底，绝不把违约的决策放行给执行层。
	if schema, cerr := compileDecisionSchema(assets); cerr == nil {
		if verr := validateAgainstSchema(schema, content); verr != nil {
			logger.Errorf("decision: 清洗结果未通过 schema 校验，弃用: %v", verr)
			e.record(Record{TraceID: traceID, Stage: "sanitizer", Model: e.Cfg.SanitizeModel, User: raw, RawOutput: content, ParseError: verr.Error()})
			return nil
		}
	} else {
		logger.Warnf("decision: 编译决策 schema 失败: %v", cerr)
	}
	result, perr := ParseResult(content)
	if perr != nil {
		logger.Errorf("decision: 清洗结果仍不可解析: %v", perr)
		e.record(Record{TraceID: traceID, Stage: "sanitizer", Model: e.Cfg.SanitizeModel, User: raw, RawOutput: content, ParseError: perr.Error()})
		return nil
	}
	e.record(Record{TraceID: traceID, Stage: "sanitizer", Model: e.Cfg.SanitizeModel, User: raw, RawOutput: content, Result: result})
	return result
}

func (e *Engine) record(rec Record) {
	if e.OnRecord != nil {
		e.OnRecord(rec)
	}
}
