package multipath

import (
	"time"

	"github.com/aptpod/multipath-go/message"
)

// PathStatsは、1本のパスの統計情報です。
type PathStats struct {
	PathID message.PathID
	// 接続先のインターフェース
	Interface message.Interface
	// ローカル側のソケットアドレス。ソケットを開く前は空です。
	LocalAddr string
	State     PathState

	// ソケットへ書き込んだバイト数。ヘッダーを含みます。
	TxBytes uint64
	// ソケットから読み込んだバイト数。ヘッダーを含みます。
	RxBytes    uint64
	TxSegments uint64
	RxSegments uint64

	// 平滑化ラウンドトリップタイム。ソケットから取得できない場合は0です。
	RTT time.Duration
}

// ReceiveStatsは、受信側で並べ直しのために保持しているセグメントの統計情報です。
type ReceiveStats struct {
	// 次にアプリケーションへ配送するバイトのシーケンス番号
	NextSeq message.SeqNum
	// 欠けている範囲を待って保留しているセグメント数とバイト数
	PendingSegments int
	PendingBytes    int
}
