package multipath

import (
	"context"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/transport"
)

/*
SendLegacyData は、新しいソケットを開き、[DATAハンドシェイクヘッダー][ペイロード]の形式でpayloadを送信してクローズします。

マルチパスコネクションを確立せずに、単一のソケットでデータを届ける場合に使用します。
受信側の Server は LegacyDataEvent として通知します。
*/
func SendLegacyData(ctx context.Context, d transport.Dialer, c transport.DialConfig, from, to message.Identity, payloads ...[]byte) error {
	var b []byte
	for _, payload := range payloads {
		if len(payload) > maxReceiveSegmentSize {
			return errors.Errorf("payload size %d exceeds %d: %w", len(payload), maxReceiveSegmentSize, errors.ErrMalformedHeader)
		}
		hs := message.HandshakeHeader{
			Command:     message.CommandData,
			Identity:    from,
			Peer:        to,
			PayloadSize: uint32(len(payload)),
		}
		var err error
		b, err = hs.AppendBinary(b)
		if err != nil {
			return err
		}
		b = append(b, payload...)
	}
	sock, err := d.Dial(ctx, c)
	if err != nil {
		return errors.Errorf("dial %v: %w", c.Address, err)
	}
	if _, err := sock.Write(b); err != nil {
		sock.Close()
		return err
	}
	return sock.Close()
}
