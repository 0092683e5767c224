/*
Package multipathはマルチパストランスポートの実装モジュールです。

ここではTCPの2つのインターフェースを束ねてバイト列を送受信するまでの一連の流れについて説明します。

# Receiver

受信側は、インターフェースごとにListenerを開き、Server で待ち受けます。
新しいコネクションは NewConnectionEventHandler で通知されます。

	package main

	import (
		"context"
		"io"
		"log"
		"os"

		"github.com/aptpod/multipath-go/multipath"
		"github.com/aptpod/multipath-go/transport"
		"github.com/aptpod/multipath-go/transport/tcp"
	)

	func main() {
		ctx := context.Background()

		var listeners []transport.Listener
		for _, addr := range []string{"192.168.0.10:9000", "10.0.0.10:9000"} {
			l, err := tcp.Listen(addr)
			if err != nil {
				log.Fatal(err)
			}
			listeners = append(listeners, l)
		}

		srv, err := multipath.NewServer(
			multipath.WithServerLocalIdentity(1000), // 受信側のIdentityです。
			multipath.WithServerListeners(listeners...),
			multipath.WithServerNewConnectionEventHandler(multipath.NewConnectionEventHandlerFunc(func(ev *multipath.NewConnectionEvent) {
				go io.Copy(os.Stdout, ev.Conn) // Conn は io.Reader として読み込めます。
			})),
		)
		if err != nil {
			log.Fatal(err)
		}
		defer srv.Close(ctx)

		if err := srv.Serve(ctx); err != nil {
			log.Fatal(err)
		}
	}

# Sender

送信側は、受信側のインターフェースの一覧を名前解決し、 multipath.Dial で接続します。
AutoJoin を有効にすると、最初のパスが接続された後に残りのインターフェースへパスを追加します。

	package main

	import (
		"context"
		"log"

		"github.com/aptpod/multipath-go/message"
		"github.com/aptpod/multipath-go/multipath"
		"github.com/aptpod/multipath-go/resolver"
	)

	func main() {
		ctx := context.Background()

		cache, err := resolver.NewCache(0)
		if err != nil {
			log.Fatal(err)
		}
		if err := cache.Advertise(ctx, 1000, message.InterfaceSet{
			message.MustInterface("192.168.0.10:9000"),
			message.MustInterface("10.0.0.10:9000"),
		}); err != nil {
			log.Fatal(err)
		}

		conn, err := multipath.Dial(ctx, cache, 1000,
			multipath.WithConnLocalIdentity(2000),
			multipath.WithConnLocalInterfaces(
				message.MustInterface("192.168.0.20:0"),
				message.MustInterface("10.0.0.20:0"),
			),
			multipath.WithConnAutoJoin(true),
		)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close(ctx)

		// 送信したバイト列はセグメントに分割され、パスへラウンドロビンで振り分けられます。
		if _, err := conn.SendContext(ctx, []byte("hello multipath")); err != nil {
			log.Fatal(err)
		}
	}

名前解決サービスをUDPで共有する場合は resolver.Client と resolver.Server を使用します。
*/
package multipath
