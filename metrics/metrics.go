/*
Package metrics は、マルチパスコネクションの状態をPrometheusのメトリクスとして公開します。

*Metrics のメソッドはnilレシーバーでも安全に呼び出せます。
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespaceは、メトリクス名の接頭辞です。
const Namespace = "multipath"

// ハンドシェイクを拒否した理由です。
const (
	RejectReasonKeyMismatch       = "key_mismatch"
	RejectReasonDuplicatePath     = "duplicate_path"
	RejectReasonMalformed         = "malformed"
	RejectReasonTimeout           = "timeout"
	RejectReasonConnectionClosing = "connection_closing"
	RejectReasonUnknownConnection = "unknown_connection"
)

// Metricsは、マルチパスコネクションのメトリクスの集合です。
type Metrics struct {
	connections       prometheus.Gauge
	paths             prometheus.Gauge
	txBytes           prometheus.Counter
	rxBytes           prometheus.Counter
	handshakeRejected *prometheus.CounterVec
	pathErrors        prometheus.Counter
}

// Newは、Metricsを生成し、regへ登録します。
//
// regがnilの場合は登録しません。
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections",
			Help:      "Gauge of live multipath connections.",
		}),
		paths: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "paths",
			Help:      "Gauge of connected paths.",
		}),
		txBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tx_bytes_total",
			Help:      "Counter of payload bytes admitted to send.",
		}),
		rxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rx_bytes_total",
			Help:      "Counter of payload bytes delivered in order.",
		}),
		handshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handshake_rejected_total",
			Help:      "Counter of rejected inbound handshakes per reason.",
		}, []string{"reason"}),
		pathErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "path_errors_total",
			Help:      "Counter of paths terminated by socket errors.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.connections, m.paths, m.txBytes, m.rxBytes, m.handshakeRejected, m.pathErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewは、Newに失敗した場合panicします。
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) PathConnected() {
	if m == nil {
		return
	}
	m.paths.Inc()
}

func (m *Metrics) PathDisconnected() {
	if m == nil {
		return
	}
	m.paths.Dec()
}

func (m *Metrics) AddTxBytes(n int) {
	if m == nil {
		return
	}
	m.txBytes.Add(float64(n))
}

func (m *Metrics) AddRxBytes(n int) {
	if m == nil {
		return
	}
	m.rxBytes.Add(float64(n))
}

// HandshakeRejectedは、reasonによるハンドシェイクの拒否を数えます。
func (m *Metrics) HandshakeRejected(reason string) {
	if m == nil {
		return
	}
	m.handshakeRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PathError() {
	if m == nil {
		return
	}
	m.pathErrors.Inc()
}
