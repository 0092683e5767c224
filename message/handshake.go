package message

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aptpod/multipath-go/errors"
)

// Commandは、ハンドシェイクヘッダーのコマンドです。
type Command uint8

const (
	_ Command = iota
	CommandData
	CommandBuild
	CommandBuildAck
	CommandJoin
	CommandJoinAck
)

func (c Command) String() string {
	switch c {
	case CommandData:
		return "DATA"
	case CommandBuild:
		return "BUILD"
	case CommandBuildAck:
		return "BUILD-ACK"
	case CommandJoin:
		return "JOIN"
	case CommandJoinAck:
		return "JOIN-ACK"
	default:
		return fmt.Sprintf("UnknownCommand(%d)", uint8(c))
	}
}

func (c Command) valid() bool {
	return c >= CommandData && c <= CommandJoinAck
}

const (
	handshakeCommonSize    = 1 + 8
	handshakeDataSize      = handshakeCommonSize + 8 + 4
	handshakeHandshakeSize = handshakeCommonSize + 2
)

// HandshakeHeaderは、新規ソケットの先頭に置かれるヘッダーです。
//
// CommandがDATAの場合はPeerとPayloadSize、それ以外の場合はPortがエンコードされます。
type HandshakeHeader struct {
	Command  Command
	Identity Identity

	// DATAのときのみ有効
	Peer        Identity
	PayloadSize uint32

	// DATA以外のときのみ有効
	Port uint16
}

// IsDataPacketは、データフレーミングのレイアウトであるかどうかを返却します。
func (h *HandshakeHeader) IsDataPacket() bool {
	return h.Command == CommandData
}

func (h *HandshakeHeader) Size() int {
	if h.IsDataPacket() {
		return handshakeDataSize
	}
	return handshakeHandshakeSize
}

func (h *HandshakeHeader) AppendBinary(b []byte) ([]byte, error) {
	if !h.Command.valid() {
		return nil, errors.Errorf("invalid command %v: %w", h.Command, errors.ErrMalformedHeader)
	}
	b = append(b, byte(h.Command))
	b = binary.BigEndian.AppendUint64(b, uint64(h.Identity))
	if h.IsDataPacket() {
		b = binary.BigEndian.AppendUint64(b, uint64(h.Peer))
		b = binary.BigEndian.AppendUint32(b, h.PayloadSize)
		return b, nil
	}
	return binary.BigEndian.AppendUint16(b, h.Port), nil
}

func (h *HandshakeHeader) Decode(bs []byte) (int, error) {
	if len(bs) < handshakeCommonSize {
		return 0, errors.Errorf("handshake header too short %d: %w", len(bs), errors.ErrMalformedHeader)
	}
	cmd := Command(bs[0])
	if !cmd.valid() {
		return 0, errors.Errorf("invalid command %v: %w", cmd, errors.ErrMalformedHeader)
	}
	res := HandshakeHeader{
		Command:  cmd,
		Identity: Identity(binary.BigEndian.Uint64(bs[1:9])),
	}
	if len(bs) < res.Size() {
		return 0, errors.Errorf("handshake header too short %d: %w", len(bs), errors.ErrMalformedHeader)
	}
	if res.IsDataPacket() {
		res.Peer = Identity(binary.BigEndian.Uint64(bs[9:17]))
		res.PayloadSize = binary.BigEndian.Uint32(bs[17:21])
	} else {
		res.Port = binary.BigEndian.Uint16(bs[9:11])
	}
	*h = res
	return res.Size(), nil
}

// ReadHandshakeHeaderは、rからハンドシェイクヘッダーを1つ読み出します。
func ReadHandshakeHeader(r io.Reader) (*HandshakeHeader, error) {
	buf := make([]byte, handshakeDataSize)
	if _, err := io.ReadFull(r, buf[:handshakeCommonSize]); err != nil {
		return nil, err
	}
	rest := handshakeHandshakeSize
	if Command(buf[0]) == CommandData {
		rest = handshakeDataSize
	}
	if _, err := io.ReadFull(r, buf[handshakeCommonSize:rest]); err != nil {
		return nil, unexpectedEOF(err)
	}
	var h HandshakeHeader
	if _, err := h.Decode(buf[:rest]); err != nil {
		return nil, err
	}
	return &h, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
