package multipath

import (
	"context"
	"testing"

	"github.com/aptpod/multipath-go/message"
)

type (
	RoundRobin = roundRobin
	SendQueue  = sendQueue
)

var (
	NewKeySet    = newKeySet
	NewConnIDSet = newConnIDSet
	NewSendQueue = newSendQueue
)

func (r *roundRobin) Next(n int, ok func(i int) bool) int { return r.next(n, ok) }
func (r *roundRobin) Removed(idx, n int)                  { r.removed(idx, n) }
func (r *roundRobin) Cursor() int                         { return r.cursor }

func (s *keySet) Generate() message.ConnKey    { return s.generate() }
func (s *keySet) Release(k message.ConnKey)    { s.release(k) }
func (s *keySet) SetRandom(f func() uint32)    { s.random = f }
func (s *connIDSet) Generate() message.ConnID  { return s.generate() }
func (s *connIDSet) Release(id message.ConnID) { s.release(id) }
func (s *connIDSet) SetRandom(f func() uint64) { s.random = f }
func (q *sendQueue) Push(b []byte) bool        { return q.push(b) }
func (q *sendQueue) Pop() ([]byte, bool)       { return q.pop() }
func (q *sendQueue) CloseAfterFlush()          { q.closeAfterFlush() }
func (q *sendQueue) Abort()                    { q.abort() }

// SetConnIDRandomは、サーバーが割り当てるConnIDの乱数を差し替えます。Serveの前に呼び出します。
func SetConnIDRandom(t *testing.T, s *Server, f func() uint64) {
	t.Helper()
	s.connIDs.random = f
}

// ConnKeysは、コネクションのローカルとリモートのキーを返却します。
func ConnKeys(ctx context.Context, c *Conn) (local, remote message.ConnKey, err error) {
	err = c.d.Do(ctx, func() {
		local, remote = c.localKey, c.remoteKey
	})
	return
}

// SetRemoteKeyは、コネクションが送信するリモートのキーを差し替えます。
func SetRemoteKey(ctx context.Context, c *Conn, k message.ConnKey) error {
	return c.d.Do(ctx, func() {
		c.remoteKey = k
	})
}

// DispatcherOfは、コネクションが使用するDispatcherを返却します。
func DispatcherOf(c *Conn) *Dispatcher {
	return c.d
}

var InterfaceOfAddr = interfaceOfAddr
