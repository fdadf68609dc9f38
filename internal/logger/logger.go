// Package logger 提供进程级的分级日志与 LLM 请求转储。
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"
)

var (
	levelVar slog.LevelVar
	std      atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	std.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput 切换日志输出目标，通常传入 stdout 与日志文件的 MultiWriter。
func SetOutput(w io.Writer) {
	std.Store(newLogger(w))
}

// SetLevel 按配置字符串调整日志级别，无法识别时回落到 info。
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debugf(format string, v ...any) {
	std.Load().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	std.Load().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	std.Load().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	std.Load().Error(fmt.Sprintf(format, v...))
}
