/*
Package resolver は、論理的なIdentityを到達可能なインターフェースの一覧へ解決する名前解決の境界を定義します。
*/
package resolver

import (
	"context"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
)

//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}

// ErrNotFoundは、Identityに対応するインターフェースが登録されていない場合のエラーです。
var ErrNotFound = errors.New("resolver: identity not found")

// Resolverは、名前解決のインターフェースです。
type Resolver interface {
	// Resolveは、idが現在到達可能なインターフェースの一覧を返却します。
	Resolve(ctx context.Context, id message.Identity) (message.InterfaceSet, error)
	// Advertiseは、idが到達可能なインターフェースの一覧を登録します。
	Advertise(ctx context.Context, id message.Identity, ifaces message.InterfaceSet) error
}
