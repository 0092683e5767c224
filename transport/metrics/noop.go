package metrics

import "time"

var _ MetricsProvider = (*noopMetricsProvider)(nil)

// noopMetricsProvider は MetricsProvider の何もしない実装です。
type noopMetricsProvider struct{}

// NewNopMetricsProvider は、常にデフォルト値を返すMetricsProviderを生成します。
//
// TCP以外のソケットや、TCP_INFO が利用できない環境で使用されます。
func NewNopMetricsProvider() MetricsProvider {
	return &noopMetricsProvider{}
}

func (n *noopMetricsProvider) RTT() time.Duration       { return defaultRTT }
func (n *noopMetricsProvider) RTTVar() time.Duration    { return defaultRTTVar }
func (n *noopMetricsProvider) CongestionWindow() uint64 { return defaultCWND }
func (n *noopMetricsProvider) Measured() bool           { return false }
