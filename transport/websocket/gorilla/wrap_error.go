package gorilla

import (
	"io"
	"net"
	"os"
	"syscall"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/multipath-go/errors"
)

func handleError(err error) error {
	if err == nil {
		return nil
	}
	if gwebsocket.IsCloseError(err, gwebsocket.CloseNormalClosure, gwebsocket.CloseGoingAway) {
		return io.EOF
	}
	if isErrTransportClosed(err) {
		return errors.Errorf("%v: %w", err, net.ErrClosed)
	}
	return err
}

func isErrTransportClosed(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if err, ok := err.(*net.OpError); ok {
		if errors.Is(err, syscall.EPIPE) {
			return false
		}
		if err, ok := err.Unwrap().(*os.SyscallError); ok {
			return err.Unwrap().Error() == "use of closed network connection"
		}
	}
	return false
}
