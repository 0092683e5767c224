package multipath

import (
	"context"
	"sync"

	"github.com/aptpod/multipath-go/errors"
)

/*
Dispatcher は、パスとコネクションのイベントを1つのゴルーチンで順に処理するイベントループです。

Post されたイベントは投入順に1つずつ最後まで実行され、途中で他のイベントに割り込まれることはありません。
パス、コネクション、サーバーの状態はこのゴルーチンの中でのみ変更されます。

アプリケーションへの通知は別のゴルーチンで投入順に実行されるため、イベントハンドラーの中から
Conn のブロッキングするメソッドを呼び出すことができます。

1つのDispatcherを複数のコネクションやサーバーで共有できます。
*/
type Dispatcher struct {
	loop   *eventQueue
	notify *eventQueue

	keys *keySet

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher は、Dispatcherを生成してイベントループを開始します。
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		loop:   newEventQueue(),
		notify: newEventQueue(),
		keys:   newKeySet(),
	}
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.loop.run()
	}()
	go func() {
		defer d.wg.Done()
		d.notify.run()
	}()
	return d
}

// Post は、イベントループで実行する関数を投入します。
//
// Dispatcherがクローズされている場合は ErrDispatcherClosed を返却します。
func (d *Dispatcher) Post(f func()) error {
	if !d.loop.push(f) {
		return errors.ErrDispatcherClosed
	}
	return nil
}

// Do は、イベントループでfを実行し、完了するまで待ちます。
//
// イベントループの中から呼び出してはいけません。
func (d *Dispatcher) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if err := d.Post(func() {
		defer close(done)
		f()
	}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) notifyApp(f func()) {
	d.notify.push(f)
}

// Close は、投入済みのイベントと通知を全て実行した後、イベントループを停止します。
//
// Close は停止を待たずに戻ります。停止を待つ場合は Wait を使用してください。
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		// 通知はイベントループの中からも投入されるため、ループの停止後に止める
		d.loop.push(func() {
			d.loop.close()
			d.notify.close()
		})
	})
}

// Wait は、イベントループと通知のゴルーチンが停止するまで待ちます。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type eventQueue struct {
	cond    *sync.Cond
	handler []func()
	closed  bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		handler: []func(){},
		cond:    sync.NewCond(&sync.Mutex{}),
	}
}

func (q *eventQueue) run() {
	for {
		q.cond.L.Lock()
		for len(q.handler) == 0 {
			if q.closed {
				q.cond.L.Unlock()
				return
			}
			q.cond.Wait()
		}
		handlers := make([]func(), 0, len(q.handler))
		handlers = append(handlers, q.handler...)
		q.handler = q.handler[:0]
		q.cond.L.Unlock()
		for _, h := range handlers {
			h()
		}
	}
}

func (q *eventQueue) push(f func()) bool {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	if q.closed {
		return false
	}
	q.handler = append(q.handler, f)
	q.cond.Signal()
	return true
}

func (q *eventQueue) close() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	q.closed = true
	q.cond.Signal()
}
