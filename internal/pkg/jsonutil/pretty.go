package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Pretty 把 JSON 文本重排为两空格缩进；非 JSON 输入原样返回。
func Pretty(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
