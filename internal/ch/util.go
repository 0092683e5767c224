package ch

import "context"

// ReadOrDoneOneは、cから1つ読み込むか、ctxが完了するまで待ちます。
//
// ctxが完了した場合とcがクローズされた場合はfalseを返却します。
func ReadOrDoneOne[T any](ctx context.Context, c <-chan T) (T, bool) {
	var t T
	select {
	case <-ctx.Done():
		return t, false
	case v, ok := <-c:
		if !ok {
			return t, false
		}
		return v, true
	}
}
