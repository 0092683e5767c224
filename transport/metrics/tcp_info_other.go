//go:build !linux

package metrics

import "net"

// TCPInfoProvider は、Linux以外では常にデフォルト値を返します。
type TCPInfoProvider struct {
	noopMetricsProvider
}

// NewTCPInfoProvider は、TCPInfoProviderを生成します。
func NewTCPInfoProvider(conn *net.TCPConn) *TCPInfoProvider {
	return &TCPInfoProvider{}
}
