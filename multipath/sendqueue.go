package multipath

import "sync"

// sendQueueは、パスのライターゴルーチンへ渡す送信データのキューです。
//
// pushはブロックしません。
type sendQueue struct {
	cond    *sync.Cond
	bufs    [][]byte
	closed  bool
	aborted bool
}

func newSendQueue() *sendQueue {
	return &sendQueue{
		cond: sync.NewCond(&sync.Mutex{}),
	}
}

func (q *sendQueue) push(b []byte) bool {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	if q.closed || q.aborted {
		return false
	}
	q.bufs = append(q.bufs, b)
	q.cond.Signal()
	return true
}

// popは、次の送信データを取り出します。
//
// closeAfterFlushの後は残りを全て返却してからfalseを返却します。abortの後は即座にfalseを返却します。
func (q *sendQueue) pop() ([]byte, bool) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for len(q.bufs) == 0 && !q.closed && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted || len(q.bufs) == 0 {
		return nil, false
	}
	b := q.bufs[0]
	q.bufs[0] = nil
	q.bufs = q.bufs[1:]
	return b, true
}

func (q *sendQueue) closeAfterFlush() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *sendQueue) abort() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	q.aborted = true
	q.bufs = nil
	q.cond.Broadcast()
}
