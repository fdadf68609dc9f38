package decision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"helix/internal/pkg/convert"
	"helix/internal/pkg/jsonutil"
)

// 中文说明：
// 模型输出的归一化入口。兼容两种决策形态：
//   1. 对象形式 {asset, action, allocation_usd, ...}
//   2. 旧的定长数组形式 [asset, action, allocation_usd, tp, sl, exit_plan, rationale]
// 缺省字段补默认值（allocation 0、价格 null、空字符串）。

// errMissingDecisions 表示载荷结构合法但缺少 trade_decisions 列表，
// 调用方据此区分"空决策集"与"彻底解析失败"。
var errMissingDecisions = errors.New("trade_decisions 缺失或不是数组")

// ParseResult 从模型原始文本中提取并归一化决策载荷。
func ParseResult(raw string) (*Result, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, fmt.Errorf("决策内容为空")
	}
	if !gjson.Valid(content) {
		extracted, ok := jsonutil.ExtractJSON(content)
		if !ok || !gjson.Valid(extracted) {
			return nil, fmt.Errorf("未能从输出中提取有效 JSON")
		}
		content = extracted
	}
	parsed := gjson.Parse(content)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("根节点必须是 JSON 对象")
	}
	result := &Result{Reasoning: parsed.Get("reasoning").String()}
	decisionsNode := parsed.Get("trade_decisions")
	if !decisionsNode.Exists() || !decisionsNode.IsArray() {
		return result, errMissingDecisions
	}
	var firstErr error
	decisionsNode.ForEach(func(_, item gjson.Result) bool {
		d, err := normalizeDecision(item)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true // 跳过坏条目，不中断整批
		}
		result.Decisions = append(result.Decisions, d)
		return true
	})
	if len(result.Decisions) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func normalizeDecision(item gjson.Result) (TradeDecision, error) {
	switch {
	case item.IsObject():
		return normalizeObjectDecision(item), nil
	case item.IsArray():
		return normalizePositionalDecision(item)
	default:
		return TradeDecision{}, fmt.Errorf("决策条目既不是对象也不是数组: %s", item.Raw)
	}
}

func normalizeObjectDecision(item gjson.Result) TradeDecision {
	d := TradeDecision{
		Asset:         strings.ToUpper(strings.TrimSpace(item.Get("asset").String())),
		Action:        strings.ToLower(strings.TrimSpace(item.Get("action").String())),
		AllocationUSD: item.Get("allocation_usd").Float(),
		ExitPlan:      item.Get("exit_plan").String(),
		Rationale:     item.Get("rationale").String(),
		SetupGrade:    strings.ToUpper(strings.TrimSpace(item.Get("setup_grade").String())),
	}
	d.TPPrice = numberOrNil(item.Get("tp_price"))
	d.SLPrice = numberOrNil(item.Get("sl_price"))
	if ids := item.Get("order_ids"); ids.IsArray() {
		ids.ForEach(func(_, id gjson.Result) bool {
			if s := strings.TrimSpace(id.String()); s != "" {
				d.OrderIDs = append(d.OrderIDs, s)
			}
			return true
		})
	}
	return d
}

// normalizePositionalDecision 处理定长数组形式，字段顺序固定：
// asset, action, allocation_usd, tp_price, sl_price, exit_plan, rationale。
func normalizePositionalDecision(item gjson.Result) (TradeDecision, error) {
	fields := item.Array()
	if len(fields) < 7 {
		return TradeDecision{}, fmt.Errorf("数组形式决策至少需要 7 个字段，实际 %d", len(fields))
	}
	return TradeDecision{
		Asset:         strings.ToUpper(strings.TrimSpace(convert.ToString(fields[0].Value()))),
		Action:        strings.ToLower(strings.TrimSpace(convert.ToString(fields[1].Value()))),
		AllocationUSD: convert.ToFloat64(fields[2].Value()),
		TPPrice:       positionalPrice(fields[3].Value()),
		SLPrice:       positionalPrice(fields[4].Value()),
		ExitPlan:      convert.ToString(fields[5].Value()),
		Rationale:     convert.ToString(fields[6].Value()),
	}, nil
}

// positionalPrice 把数组形式里的价格字段转成指针；0、null、"null" 一律视为未设置。
func positionalPrice(v any) *float64 {
	p := convert.ToFloatPtr(v)
	if p == nil || *p == 0 {
		return nil
	}
	return p
}

func numberOrNil(node gjson.Result) *float64 {
	switch node.Type {
	case gjson.Number:
		f := node.Float()
		return &f
	case gjson.String:
		return convert.ToFloatPtr(node.String())
	default:
		return nil
	}
}
