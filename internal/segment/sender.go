package segment

import (
	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
)

// Senderは、1つのデータセグメントを送信するインターフェースです。
type Sender interface {
	SendSegment(seq message.SeqNum, payload []byte) error
}

// SenderFuncは、Senderの関数です。
type SenderFunc func(seq message.SeqNum, payload []byte) error

func (f SenderFunc) SendSegment(seq message.SeqNum, payload []byte) error {
	return f(seq, payload)
}

// SendToは、msgPayloadを最大maxPayloadSizeバイトのセグメントに分割し、seqから順に送信します。
//
// 送信できたバイト数と、次に使用するシーケンス番号を返却します。
// 途中で失敗した場合、それまでに送信したセグメントの分だけシーケンス番号は進みます。
func SendTo(wr Sender, seq message.SeqNum, msgPayload []byte, maxPayloadSize int) (int, message.SeqNum, error) {
	if maxPayloadSize <= 0 {
		return 0, seq, errors.Errorf("invalid max payload size %d: %w", maxPayloadSize, errors.ErrMultipath)
	}
	var size int
	for offset := 0; offset < len(msgPayload); offset += maxPayloadSize {
		end := min(offset+maxPayloadSize, len(msgPayload))
		payload := msgPayload[offset:end]
		if err := wr.SendSegment(seq, payload); err != nil {
			return size, seq, err
		}
		seq = seq.Add(len(payload))
		size += len(payload)
	}
	return size, seq, nil
}
