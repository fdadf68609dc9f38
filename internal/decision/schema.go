package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildDecisionSchema 生成输出契约的 JSON Schema，
// 既用于主请求的 response_format，也用于清洗通道的强约束。
func buildDecisionSchema(assets []string) map[string]any {
	assetEnum := make([]any, 0, len(assets))
	for _, a := range assets {
		assetEnum = append(assetEnum, a)
	}
	properties := map[string]any{
		"asset":          map[string]any{"type": "string", "enum": assetEnum},
		"action":         map[string]any{"type": "string", "enum": []any{ActionBuy, ActionSell, ActionHold, ActionCancelSpecific}},
		"allocation_usd": map[string]any{"type": "number", "minimum": 0},
		"tp_price":       map[string]any{"type": []any{"number", "null"}},
		"sl_price":       map[string]any{"type": []any{"number", "null"}},
		"exit_plan":      map[string]any{"type": "string"},
		"rationale":      map[string]any{"type": "string"},
		"setup_grade":    map[string]any{"type": "string", "enum": []any{"A", "B", "C"}},
		"order_ids":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	}
	required := []any{"asset", "action", "allocation_usd", "tp_price", "sl_price", "exit_plan", "rationale", "setup_grade"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reasoning": map[string]any{"type": "string"},
			"trade_decisions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"properties":           properties,
					"required":             required,
					"additionalProperties": false,
				},
				"minItems": 1,
			},
		},
		"required":             []any{"reasoning", "trade_decisions"},
		"additionalProperties": false,
	}
}

// compileDecisionSchema 把 schema 编译为可执行校验器，用于核对清洗结果。
func compileDecisionSchema(assets []string) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(buildDecisionSchema(assets))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decision.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("decision.json")
}

// validateAgainstSchema 用编译好的 schema 校验一段 JSON 文本。
func validateAgainstSchema(schema *jsonschema.Schema, raw string) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("json 格式无效: %w", err)
	}
	return schema.Validate(doc)
}
