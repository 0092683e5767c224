package message

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"github.com/aptpod/multipath-go/errors"
)

// Methodは、名前解決クエリのメソッドです。
type Method uint8

const (
	_ Method = iota
	MethodInsert
	MethodInsertOK
	MethodQuery
	MethodQueryOK
	MethodQueryFail
)

func (m Method) String() string {
	switch m {
	case MethodInsert:
		return "INSERT"
	case MethodInsertOK:
		return "INSERT-OK"
	case MethodQuery:
		return "QUERY"
	case MethodQueryOK:
		return "QUERY-OK"
	case MethodQueryFail:
		return "QUERY-FAIL"
	default:
		return fmt.Sprintf("UnknownMethod(%d)", uint8(m))
	}
}

func (m Method) valid() bool {
	return m >= MethodInsert && m <= MethodQueryFail
}

// HasInterfacesは、インターフェース一覧を伴うメソッドかどうかを返却します。
func (m Method) HasInterfaces() bool {
	return m == MethodInsert || m == MethodQueryOK
}

const (
	resolutionFixedSize = 1 + 4 + 8 + 1
	interfaceEntrySize  = 4 + 2

	// MaxInterfaceCountは、1つのヘッダーに含められるインターフェースの最大数です。
	MaxInterfaceCount = math.MaxUint8
)

// ResolutionHeaderは、名前解決サービスとのクエリに使用するヘッダーです。
//
// InterfacesはMethodがINSERTまたはQUERY-OKの場合のみエンコードされます。
// それ以外のメソッドでは、インターフェース数は常に0としてエンコードされます。
// インターフェース数が0の場合、デコード後のInterfacesはnilです。
type ResolutionHeader struct {
	Method     Method
	QueryID    uint32
	Identity   Identity
	Interfaces InterfaceSet
}

func (h *ResolutionHeader) Size() int {
	if !h.Method.HasInterfaces() {
		return resolutionFixedSize
	}
	return resolutionFixedSize + len(h.Interfaces)*interfaceEntrySize
}

func (h *ResolutionHeader) AppendBinary(b []byte) ([]byte, error) {
	if !h.Method.valid() {
		return nil, errors.Errorf("invalid method %v: %w", h.Method, errors.ErrMalformedHeader)
	}
	var ifs InterfaceSet
	if h.Method.HasInterfaces() {
		ifs = h.Interfaces
	}
	if len(ifs) > MaxInterfaceCount {
		return nil, errors.Errorf("too many interfaces %d: %w", len(ifs), errors.ErrMalformedHeader)
	}
	b = append(b, byte(h.Method))
	b = binary.BigEndian.AppendUint32(b, h.QueryID)
	b = binary.BigEndian.AppendUint64(b, uint64(h.Identity))
	b = append(b, uint8(len(ifs)))
	for _, v := range ifs {
		addr := v.Addr.Unmap()
		if !addr.Is4() {
			return nil, errors.Errorf("interface %v is not IPv4: %w", v, errors.ErrMalformedHeader)
		}
		a4 := addr.As4()
		b = append(b, a4[:]...)
		b = binary.BigEndian.AppendUint16(b, v.Port)
	}
	return b, nil
}

func (h *ResolutionHeader) Decode(bs []byte) (int, error) {
	if len(bs) < resolutionFixedSize {
		return 0, errors.Errorf("resolution header too short %d: %w", len(bs), errors.ErrMalformedHeader)
	}
	method := Method(bs[0])
	if !method.valid() {
		return 0, errors.Errorf("invalid method %v: %w", method, errors.ErrMalformedHeader)
	}
	res := ResolutionHeader{
		Method:   method,
		QueryID:  binary.BigEndian.Uint32(bs[1:5]),
		Identity: Identity(binary.BigEndian.Uint64(bs[5:13])),
	}
	count := int(bs[13])
	if !res.Method.HasInterfaces() {
		*h = res
		return resolutionFixedSize, nil
	}
	if len(bs) < resolutionFixedSize+count*interfaceEntrySize {
		return 0, errors.Errorf("resolution header too short %d for %d interfaces: %w", len(bs), count, errors.ErrMalformedHeader)
	}
	if count > 0 {
		res.Interfaces = make(InterfaceSet, 0, count)
	}
	offset := resolutionFixedSize
	for i := 0; i < count; i++ {
		var a4 [4]byte
		copy(a4[:], bs[offset:offset+4])
		res.Interfaces = append(res.Interfaces, Interface{
			Addr: netip.AddrFrom4(a4),
			Port: binary.BigEndian.Uint16(bs[offset+4 : offset+6]),
		})
		offset += interfaceEntrySize
	}
	*h = res
	return offset, nil
}
