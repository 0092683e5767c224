/*
Package multipath は、複数のパスを束ねて1本の論理的なバイトストリームとして扱うマルチパスコネクションの実装パッケージです。

# Overview

コネクションの両端は、IPアドレスに依存しない Identity で識別されます。
1本のコネクションは、それぞれが1組のアドレスを結ぶ通常のソケットであるパスを複数持ちます。

	Conn (Identity A) ---- path 1 (10.0.0.1 -> 10.0.0.3) ---- Conn (Identity B)
	                  \--- path 2 (10.0.0.2 -> 10.0.0.4) ---/

開始側は Conn.Connect で最初のパスをBUILDハンドシェイクで開き、サーバーからConnIDを割り当てられます。
以降は Conn.AddPath で、同じConnIDと両端のキーを使ったJOINハンドシェイクによりパスを追加します。

送信したバイト列はセグメントに分割され、接続済みのパスへラウンドロビンで振り分けられます。
受信側はシーケンス番号でセグメントを並べ直すため、パスごとの到着順に関係なく順序通りのバイト列を受け取れます。

# Concurrency

パス、コネクション、サーバーの状態は全て Dispatcher の1つのゴルーチンの中で変更されます。
ソケットの読み書きはパスごとのゴルーチンで行い、その結果はイベントとして Dispatcher へ投入されます。

アプリケーションへの通知は、各種 EventHandler を通して投入順に行われます。

# Server

	network := transport.NewMemoryNetwork()
	l, _ := network.Listen("10.0.0.3:9000")
	srv, _ := multipath.NewServer(
		multipath.WithServerLocalIdentity(2),
		multipath.WithServerListeners(l),
		multipath.WithServerNewConnectionEventHandler(multipath.NewConnectionEventHandlerFunc(func(ev *multipath.NewConnectionEvent) {
			go io.Copy(os.Stdout, ev.Conn)
		})),
	)
	go srv.Serve(ctx)
	defer srv.Close(ctx)
*/
package multipath
