package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/multipath-go/metrics"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.PathConnected()
	m.PathConnected()
	m.PathDisconnected()
	m.AddTxBytes(1000)
	m.AddRxBytes(600)
	m.AddRxBytes(400)
	m.HandshakeRejected(RejectReasonKeyMismatch)
	m.PathError()

	expected := `
# HELP multipath_connections Gauge of live multipath connections.
# TYPE multipath_connections gauge
multipath_connections 1
# HELP multipath_handshake_rejected_total Counter of rejected inbound handshakes per reason.
# TYPE multipath_handshake_rejected_total counter
multipath_handshake_rejected_total{reason="key_mismatch"} 1
# HELP multipath_path_errors_total Counter of paths terminated by socket errors.
# TYPE multipath_path_errors_total counter
multipath_path_errors_total 1
# HELP multipath_paths Gauge of connected paths.
# TYPE multipath_paths gauge
multipath_paths 1
# HELP multipath_rx_bytes_total Counter of payload bytes delivered in order.
# TYPE multipath_rx_bytes_total counter
multipath_rx_bytes_total 1000
# HELP multipath_tx_bytes_total Counter of payload bytes admitted to send.
# TYPE multipath_tx_bytes_total counter
multipath_tx_bytes_total 1000
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.PathConnected()
		m.PathDisconnected()
		m.AddTxBytes(1)
		m.AddRxBytes(1)
		m.HandshakeRejected(RejectReasonTimeout)
		m.PathError()
	})
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew(reg) })
}
