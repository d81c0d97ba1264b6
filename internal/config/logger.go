package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger はログ設定に従ってzerologのロガーを生成する。
// Formatが "json" の場合はJSON、それ以外は人が読みやすいコンソール形式で出力する。
func (l LogConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if l.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(l.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("ログレベルが不正です: %q: %w", l.Level, err)
		}
		level = parsed
	}

	out := w
	switch strings.ToLower(l.Format) {
	case "json":
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Logger{}, fmt.Errorf("ログ形式が不正です: %q", l.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "console").Logger(), nil
}
