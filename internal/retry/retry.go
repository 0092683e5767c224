package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/aptpod/multipath-go/errors"
)

var (
	randFloat64         = rand.Float64
	defaultBaseInterval = 100 * time.Millisecond
	defaultMaxInterval  = 5 * time.Second
)

// ErrMaxAttemptは、最大試行回数に達した場合のエラーです。
var ErrMaxAttempt = errors.New("retry: max attempt exceeded")

// RetryはExponential Backoff and Jitter方式のリトライを行います。
//
// Jitterは 0.5 ~ 1.5のランダム値です。
type Retry struct {
	// 最大試行回数。0はリトライをし続けます。デフォルトは0です。
	MaxAttempt int

	// 基準リトライ間隔。デフォルトは100ミリ秒です。
	BaseInterval time.Duration

	// 最大基準リトライ間隔。デフォルトは5秒です。
	MaxBaseInterval time.Duration
}

// RetryFuncは、リトライを実施する関数です。
type RetryFunc func() (end bool)

// Doは、fがtrueを返すまでリトライします。
//
// ctxがキャンセルされた場合は ctx.Err() を、最大試行回数に達した場合は ErrMaxAttempt を返却します。
func (r Retry) Do(ctx context.Context, f RetryFunc) error {
	baseInterval := r.BaseInterval
	if baseInterval == 0 {
		baseInterval = defaultBaseInterval
	}
	maxBaseInterval := r.MaxBaseInterval
	if maxBaseInterval == 0 {
		maxBaseInterval = defaultMaxInterval
	}
	var retryCount int
	for {
		if r.MaxAttempt != 0 && retryCount >= r.MaxAttempt {
			return ErrMaxAttempt
		}
		if f() {
			return nil
		}
		retryCount++
		if r.MaxAttempt != 0 && retryCount >= r.MaxAttempt {
			return ErrMaxAttempt
		}
		timer := time.NewTimer(nextSleep(retryCount-1, baseInterval, maxBaseInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func nextSleep(count int, base, max time.Duration) time.Duration {
	baseInterval := float64(base) * math.Pow(2, float64(count))
	if baseInterval > float64(max) {
		baseInterval = float64(max)
	}

	jitter := 0.5 + randFloat64()
	return time.Duration(baseInterval * jitter)
}

// Valueは、fが成功するまでリトライし、その結果を返却します。
//
// リトライを終了した場合は、最後に失敗した原因とリトライの終了理由を両方含むエラーを返却します。
func Value[T any](ctx context.Context, r Retry, f func(ctx context.Context) (T, error)) (T, error) {
	var (
		res     T
		lastErr error
	)
	err := r.Do(ctx, func() bool {
		v, err := f(ctx)
		if err != nil {
			lastErr = err
			return false
		}
		res = v
		return true
	})
	if err != nil {
		var zero T
		if lastErr != nil {
			return zero, errors.Join(lastErr, err)
		}
		return zero, err
	}
	return res, nil
}
