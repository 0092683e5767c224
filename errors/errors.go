package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipathはmultipathライブラリで定義されている基底エラーです。
	ErrMultipath = errors.New("multipath")

	// ErrHandshakeMismatchは、JOIN/JOIN-ACKなどのハンドシェイクで鍵またはコネクションIDが一致しなかった場合のエラーです。
	//
	// このエラーはパスを破棄するのみで、コネクション自体は継続します。
	ErrHandshakeMismatch = fmt.Errorf("handshake mismatch: %w", ErrMultipath)
	// ErrNoReachableInterfaceは、接続先のインターフェース一覧が空の場合のエラーです。
	ErrNoReachableInterface = fmt.Errorf("no reachable interface: %w", ErrMultipath)
	// ErrNoActivePathは、接続済みのパスが1つもない状態で送信した場合のエラーです。
	ErrNoActivePath = fmt.Errorf("no active path: %w", ErrMultipath)
	// ErrNotConnectedは、送信可能な状態になっていないコネクションを操作した場合のエラーです。
	ErrNotConnected = fmt.Errorf("not connected: %w", ErrMultipath)
	// ErrPathErrorは、単一パスのソケットレベルの失敗を表します。
	ErrPathError = fmt.Errorf("path error: %w", ErrMultipath)
	// ErrConnectionLostは、クローズ処理中でないコネクションの最後のパスが失われた場合のエラーです。
	ErrConnectionLost = fmt.Errorf("connection lost: %w", ErrMultipath)
	// ErrConnectionClosedは、クローズ済みのコネクションを操作した場合のエラーです。
	ErrConnectionClosed = fmt.Errorf("connection closed: %w", ErrMultipath)
	// ErrMalformedHeaderは、ヘッダーのエンコードやデコードに失敗した時のエラーです。
	ErrMalformedHeader = fmt.Errorf("malformed header: %w", ErrMultipath)
	// ErrHandshakeTimeoutは、ハンドシェイクが制限時間内に完了しなかった場合のエラーです。
	ErrHandshakeTimeout = fmt.Errorf("handshake timeout: %w", ErrMultipath)
	// ErrAlreadyConnectedは、接続処理を開始済みのコネクションでConnectを呼び出した場合のエラーです。
	ErrAlreadyConnected = fmt.Errorf("already connected: %w", ErrMultipath)
	// ErrNotInitiatorは、接続を受け付けた側のコネクションでパスを追加しようとした場合のエラーです。
	ErrNotInitiator = fmt.Errorf("not initiator: %w", ErrMultipath)
	// ErrDispatcherClosedは、停止済みのディスパッチャーへイベントを投入した場合のエラーです。
	ErrDispatcherClosed = fmt.Errorf("dispatcher closed: %w", ErrMultipath)
)

// PathErrorは、特定のパスで発生したエラーです。
type PathError struct {
	PathID    uint32 // パスID
	Interface string // 接続先インターフェース
	Err       error  // 原因
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %d (%s): %v", e.PathID, e.Interface, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func (e *PathError) Is(err error) bool {
	return err == ErrPathError || err == ErrMultipath
}

// AsPathErrorは、errがPathErrorを含む場合にそれを返却します。
func AsPathError(err error) (*PathError, bool) {
	var res *PathError
	ok := As(err, &res)
	return res, ok
}

func New(text string) error {
	return errors.New(text)
}

func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
