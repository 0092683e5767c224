package segment

import (
	"github.com/aptpod/multipath-go/message"
)

/*
ReadBuffer は、複数のパスから順不同に届くセグメントを、シーケンス番号の順に並べ直すバッファです。

Next より前のバイトは配送済みとして扱います。
Next に到達していないセグメントは保留され、欠けている範囲が埋まった時点でまとめて返却されます。

ReadBuffer はゴルーチンセーフではありません。
*/
type ReadBuffer struct {
	next    message.SeqNum
	pending map[message.SeqNum][]byte
	size    int
}

// NewReadBufferは、nextから受信を開始するReadBufferを生成します。
func NewReadBuffer(next message.SeqNum) *ReadBuffer {
	return &ReadBuffer{
		next:    next,
		pending: make(map[message.SeqNum][]byte),
	}
}

// Nextは、次に配送するバイトのシーケンス番号を返却します。
func (b *ReadBuffer) Next() message.SeqNum {
	return b.next
}

// Pendingは、保留中のセグメント数を返却します。
func (b *ReadBuffer) Pending() int {
	return len(b.pending)
}

// PendingBytesは、保留中のバイト数を返却します。
func (b *ReadBuffer) PendingBytes() int {
	return b.size
}

// Receiveは、seqから始まるセグメントを受け取り、新たに順序通りに並んだバイト列を返却します。
//
// 配送済みの範囲に完全に含まれるセグメントは破棄します。
// 配送済みの範囲と一部が重なるセグメントは、重なった先頭を切り詰めて扱います。
// 同じseqのセグメントが保留中の場合は、長い方を残します。
func (b *ReadBuffer) Receive(seq message.SeqNum, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	end := seq.Add(len(payload))
	if !b.next.Less(end) {
		return nil
	}
	if seq.Less(b.next) {
		payload = payload[b.next.Diff(seq):]
		seq = b.next
	}
	if seq != b.next {
		if cur, ok := b.pending[seq]; ok {
			if len(cur) >= len(payload) {
				return nil
			}
			b.size -= len(cur)
		}
		b.pending[seq] = payload
		b.size += len(payload)
		return nil
	}

	res := append([]byte(nil), payload...)
	b.next = end
	return b.flush(res)
}

// flushは、nextに到達した保留中のセグメントを順にresへ追記します。
func (b *ReadBuffer) flush(res []byte) []byte {
	for len(b.pending) > 0 {
		progressed := false
		for seq, payload := range b.pending {
			if b.next.Less(seq) {
				continue
			}
			delete(b.pending, seq)
			b.size -= len(payload)
			progressed = true
			end := seq.Add(len(payload))
			if !b.next.Less(end) {
				continue
			}
			res = append(res, payload[b.next.Diff(seq):]...)
			b.next = end
		}
		if !progressed {
			break
		}
	}
	return res
}
