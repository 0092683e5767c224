package metrics

import "time"

const (
	// メトリクスがまだ利用できない場合のデフォルト値
	defaultRTT    = 100 * time.Millisecond
	defaultRTTVar = 50 * time.Millisecond
	defaultCWND   = 14600 // 10 * MSS (1460 バイト)
)

// MetricsProvider は、パスのソケットのメトリクスを取得するためのインターフェースです。
//
// 実装は並行アクセスに対して安全である必要があります。
type MetricsProvider interface {
	// RTT は、平滑化ラウンドトリップタイム (SRTT) を返します。
	// まだ測定されていない場合は、デフォルト値を返します。
	RTT() time.Duration

	// RTTVar は、RTT変動 (RTTVAR) を返します。
	RTTVar() time.Duration

	// CongestionWindow は、輻輳ウィンドウサイズをバイト単位で返します。
	CongestionWindow() uint64

	// Measured は、カーネル等から実際に値を取得できているかどうかを返します。
	Measured() bool
}
