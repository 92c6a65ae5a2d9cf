// Package logger は slog ベースの構造化ロガーを提供します。
package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New は設定に応じたロガーを生成します。
// format が "json" の場合はJSONハンドラー、それ以外はtintによるコンソール出力です。
func New(level, format string) *slog.Logger {
	lv := parseLevel(level)

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: lv,
		}))
	}

	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      lv,
		TimeFormat: time.RFC3339,
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
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
