package message

import (
	"encoding/binary"
	"io"

	"github.com/aptpod/multipath-go/errors"
)

// PathHeaderSizeは、PathHeaderのシリアライズ後のバイト数です。
const PathHeaderSize = 4 + 8 + 4 + 4 + 8

// PathHeaderは、BUILD/JOINハンドシェイクで使用するパス制御ヘッダーです。
type PathHeader struct {
	PathID      PathID
	Owner       Identity // コネクションを開始した側のIdentity
	SenderKey   ConnKey
	ReceiverKey ConnKey
	ConnID      ConnID
}

func (h *PathHeader) Size() int {
	return PathHeaderSize
}

func (h *PathHeader) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, uint32(h.PathID))
	b = binary.BigEndian.AppendUint64(b, uint64(h.Owner))
	b = binary.BigEndian.AppendUint32(b, uint32(h.SenderKey))
	b = binary.BigEndian.AppendUint32(b, uint32(h.ReceiverKey))
	b = binary.BigEndian.AppendUint64(b, uint64(h.ConnID))
	return b, nil
}

func (h *PathHeader) Decode(bs []byte) (int, error) {
	if len(bs) < PathHeaderSize {
		return 0, errors.Errorf("path header too short %d: %w", len(bs), errors.ErrMalformedHeader)
	}
	h.PathID = PathID(binary.BigEndian.Uint32(bs[0:4]))
	h.Owner = Identity(binary.BigEndian.Uint64(bs[4:12]))
	h.SenderKey = ConnKey(binary.BigEndian.Uint32(bs[12:16]))
	h.ReceiverKey = ConnKey(binary.BigEndian.Uint32(bs[16:20]))
	h.ConnID = ConnID(binary.BigEndian.Uint64(bs[20:28]))
	return PathHeaderSize, nil
}

// ReadPathHeaderは、rからパス制御ヘッダーを1つ読み出します。
func ReadPathHeader(r io.Reader) (*PathHeader, error) {
	buf := make([]byte, PathHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	var h PathHeader
	if _, err := h.Decode(buf); err != nil {
		return nil, err
	}
	return &h, nil
}
