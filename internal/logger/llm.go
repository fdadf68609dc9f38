package logger

import (
	"io"
	"log"
	"strings"
	"sync"

	"helix/internal/pkg/jsonutil"
)

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

// SetLLMWriter 指定 LLM 请求/响应转储的输出目标（nil 表示关闭）。
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(kind, model, stage string, sections []llmSection) {
	llmMu.Lock()
	lg := llmLog
	llmMu.Unlock()
	if lg == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if model != "" {
		b.WriteString("[" + model + "]")
	}
	if stage != "" {
		b.WriteString("[" + stage + "]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- " + t + " ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	lg.Print(b.String())
}

// LogLLMRequest 记录一次模型请求。payload 仅在开启 llm_dump_payload 时写入，
// 调用方需保证其中的 Authorization 已脱敏。
func LogLLMRequest(model, stage, headers, payload string) {
	sections := []llmSection{{Title: "HEADERS", Body: headers}}
	if llmDumpPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	logLLM("request", model, stage, sections)
}

// LogLLMResponse 记录一次模型的原始响应文本，JSON 响应会格式化后写入。
func LogLLMResponse(model, stage, raw string) {
	logLLM("response", model, stage, []llmSection{{Title: "RAW", Body: jsonutil.Pretty(raw)}})
}
