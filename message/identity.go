package message

import (
	"fmt"
	"net/netip"
	"strings"
)

type (
	// Identityは、アドレスに依存しないエンドポイントの論理的な識別子です。
	Identity uint64
	// ConnKeyは、パスがコネクションに所属していることを証明するためのノンスです。
	ConnKey uint32
	// ConnIDは、マルチパスコネクション全体の識別子です。
	//
	// 0は未割り当てを表します。
	ConnID uint64
	// PathIDは、コネクション内でパスを識別するIDです。
	PathID uint32
)

func (i Identity) String() string { return fmt.Sprintf("%d", uint64(i)) }
func (i ConnID) String() string   { return fmt.Sprintf("%016x", uint64(i)) }

// Interfaceは、あるIdentityに到達可能な1つのアドレスとポートの組です。
type Interface struct {
	Addr netip.Addr
	Port uint16
}

// NewInterfaceは、"host:port" 形式の文字列からInterfaceを生成します。
func NewInterface(s string) (Interface, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Interface{}, err
	}
	return Interface{Addr: ap.Addr().Unmap(), Port: ap.Port()}, nil
}

// MustInterfaceは、NewInterfaceに失敗した場合panicします。
func MustInterface(s string) Interface {
	i, err := NewInterface(s)
	if err != nil {
		panic(err)
	}
	return i
}

// AddrPortは、netip.AddrPortに変換します。
func (i Interface) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(i.Addr, i.Port)
}

func (i Interface) String() string {
	return i.AddrPort().String()
}

// InterfaceSetは、あるIdentityのInterfaceの順序付きリストです。
type InterfaceSet []Interface

// Containsは、iが含まれるかどうかを返却します。
func (s InterfaceSet) Contains(i Interface) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}

func (s InterfaceSet) String() string {
	strs := make([]string, 0, len(s))
	for _, v := range s {
		strs = append(strs, v.String())
	}
	return "[" + strings.Join(strs, ", ") + "]"
}
