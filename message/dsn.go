package message

import (
	"encoding/binary"
	"io"

	"github.com/aptpod/multipath-go/errors"
)

// DataSeqHeaderSizeは、DataSeqHeaderのシリアライズ後のバイト数です。
const DataSeqHeaderSize = 8 + 8 + 4

// DataSeqHeaderは、パス上の全てのデータセグメントの先頭に付与するヘッダーです。
type DataSeqHeader struct {
	Owner  Identity
	Seq    SeqNum
	Length uint32
}

func (h *DataSeqHeader) Size() int {
	return DataSeqHeaderSize
}

func (h *DataSeqHeader) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint64(b, uint64(h.Owner))
	b = binary.BigEndian.AppendUint64(b, uint64(h.Seq))
	b = binary.BigEndian.AppendUint32(b, h.Length)
	return b, nil
}

func (h *DataSeqHeader) Decode(bs []byte) (int, error) {
	if len(bs) < DataSeqHeaderSize {
		return 0, errors.Errorf("data sequence header too short %d: %w", len(bs), errors.ErrMalformedHeader)
	}
	h.Owner = Identity(binary.BigEndian.Uint64(bs[0:8]))
	h.Seq = SeqNum(binary.BigEndian.Uint64(bs[8:16]))
	h.Length = binary.BigEndian.Uint32(bs[16:20])
	return DataSeqHeaderSize, nil
}

// Segmentは、データシーケンスヘッダーとペイロードの組です。
type Segment struct {
	Header  DataSeqHeader
	Payload []byte
}

// AppendSegmentは、[データシーケンスヘッダー][ペイロード]の形式でbに追記します。
func AppendSegment(b []byte, owner Identity, seq SeqNum, payload []byte) []byte {
	h := DataSeqHeader{Owner: owner, Seq: seq, Length: uint32(len(payload))}
	b, _ = h.AppendBinary(b)
	return append(b, payload...)
}

// ReadSegmentは、rからデータセグメントを1つ読み出します。
//
// maxPayloadを超えるLengthを持つセグメントはErrMalformedHeaderを返却します。
func ReadSegment(r io.Reader, maxPayload int) (*Segment, error) {
	buf := make([]byte, DataSeqHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var s Segment
	if _, err := s.Header.Decode(buf); err != nil {
		return nil, err
	}
	if maxPayload > 0 && int(s.Header.Length) > maxPayload {
		return nil, errors.Errorf("segment length %d exceeds %d: %w", s.Header.Length, maxPayload, errors.ErrMalformedHeader)
	}
	s.Payload = make([]byte, s.Header.Length)
	if _, err := io.ReadFull(r, s.Payload); err != nil {
		return nil, unexpectedEOF(err)
	}
	return &s, nil
}
