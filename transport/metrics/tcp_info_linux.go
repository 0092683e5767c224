//go:build linux

package metrics

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var _ MetricsProvider = (*TCPInfoProvider)(nil)

// TCPInfoProvider は、TCP_INFO syscall を介してカーネルからメトリクスを取得します。
type TCPInfoProvider struct {
	conn *net.TCPConn

	mu          sync.Mutex
	smoothedRTT time.Duration
	rttvar      time.Duration
	cwnd        uint64
}

// NewTCPInfoProvider は、connを監視するTCPInfoProviderを生成します。
func NewTCPInfoProvider(conn *net.TCPConn) *TCPInfoProvider {
	return &TCPInfoProvider{conn: conn}
}

// update は、getsockopt で TCP_INFO を取得し、キャッシュを更新します。
func (p *TCPInfoProvider) update() {
	raw, err := p.conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		ti, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
		if err != nil {
			return
		}
		p.smoothedRTT = time.Duration(ti.Rtt) * time.Microsecond
		p.rttvar = time.Duration(ti.Rttvar) * time.Microsecond
		p.cwnd = uint64(ti.Snd_cwnd) * uint64(ti.Snd_mss)
	})
}

func (p *TCPInfoProvider) RTT() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update()
	if p.smoothedRTT == 0 {
		return defaultRTT
	}
	return p.smoothedRTT
}

func (p *TCPInfoProvider) RTTVar() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update()
	if p.rttvar == 0 {
		return defaultRTTVar
	}
	return p.rttvar
}

func (p *TCPInfoProvider) CongestionWindow() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update()
	if p.cwnd == 0 {
		return defaultCWND
	}
	return p.cwnd
}

func (p *TCPInfoProvider) Measured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update()
	return p.smoothedRTT != 0
}
