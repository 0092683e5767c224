package coder

import (
	"context"
	"fmt"
	"io"
	"net"

	cwebsocket "github.com/coder/websocket"

	"github.com/aptpod/multipath-go/errors"
)

func handleError(err error) error {
	if err == nil {
		return nil
	}

	switch cwebsocket.CloseStatus(err) {
	case cwebsocket.StatusNormalClosure, cwebsocket.StatusGoingAway:
		return io.EOF
	}

	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%v: %w", err, net.ErrClosed)
	}
	return err
}
