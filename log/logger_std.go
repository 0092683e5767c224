package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Levelは、stdロガーが出力する最小のレベルです。
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int8(l))
	}
}

type stdLogger struct {
	l   *log.Logger
	min Level
}

func (l *stdLogger) Infof(ctx context.Context, format string, args ...any) {
	l.output(ctx, LevelInfo, format, args...)
}

func (l *stdLogger) Warnf(ctx context.Context, format string, args ...any) {
	l.output(ctx, LevelWarn, format, args...)
}

func (l *stdLogger) Errorf(ctx context.Context, format string, args ...any) {
	l.output(ctx, LevelError, format, args...)
}

func (l *stdLogger) Debugf(ctx context.Context, format string, args ...any) {
	l.output(ctx, LevelDebug, format, args...)
}

func (l *stdLogger) output(ctx context.Context, level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	b := strings.Builder{}
	if v := TrackConnID(ctx); v != "" {
		b.WriteString("track-conn-id:" + v + "\t")
	}
	if v := TrackPathID(ctx); v != "" {
		b.WriteString("track-path-id:" + v + "\t")
	}
	if v := TrackSocketID(ctx); v != "" {
		b.WriteString("track-socket-id:" + v + "\t")
	}
	b.WriteString(fmt.Sprintf(format, args...))
	l.l.Output(3, fmt.Sprintf("%s: %s", level, b.String()))
}

// NewStdは、`log` パッケージのロガーを返却します。
func NewStd() Logger {
	return NewStdWith(log.Default())
}

// NewStdWithは、指定した `log.Logger` を使用するロガーを返却します。
func NewStdWith(l *log.Logger) Logger {
	return NewStdWithLevel(l, LevelDebug)
}

// NewStdWithLevelは、min以上のレベルのみを出力するロガーを返却します。
func NewStdWithLevel(l *log.Logger, min Level) Logger {
	return &stdLogger{
		l:   l,
		min: min,
	}
}
