package log

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Loggerは、multipath-go内で使用するロガーインターフェースです。
type Logger interface {
	Infof(context.Context, string, ...interface{})
	Warnf(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
	Debugf(context.Context, string, ...interface{})
}

var (
	trackConnIDKey   = "trackConnIDKey"
	trackPathIDKey   = "trackPathIDKey"
	trackSocketIDKey = "trackSocketIDKey"
)

// WithTrackConnIDは、コネクションIDをコンテキストにセットします。
//
// ここで設定されたコネクションIDは常にログ出力します。
func WithTrackConnID(ctx context.Context, connID uint64) context.Context {
	return context.WithValue(ctx, &trackConnIDKey, fmt.Sprintf("%016x", connID))
}

// TrackConnIDは、コンテキストにセットされたコネクションIDを取得します。
func TrackConnID(ctx context.Context) string {
	v, ok := ctx.Value(&trackConnIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackPathIDは、パスIDをコンテキストにセットします。
func WithTrackPathID(ctx context.Context, pathID uint32) context.Context {
	return context.WithValue(ctx, &trackPathIDKey, fmt.Sprintf("%d", pathID))
}

// TrackPathIDは、コンテキストにセットされたパスIDを取得します。
func TrackPathID(ctx context.Context) string {
	v, ok := ctx.Value(&trackPathIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackSocketIDは、新たにソケットIDを採番しコンテキストにセットします。
//
// ソケットIDは、コネクションに所属する前の受信ソケットを識別するために使用します。
func WithTrackSocketID(ctx context.Context) context.Context {
	return context.WithValue(ctx, &trackSocketIDKey, genTrackID())
}

// TrackSocketIDは、コンテキストにセットされたソケットIDを取得します。
func TrackSocketID(ctx context.Context) string {
	v, ok := ctx.Value(&trackSocketIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

func genTrackID() string {
	return uuid.NewString()[:8]
}
