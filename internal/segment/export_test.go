package segment

import "github.com/aptpod/multipath-go/message"

func (b *ReadBuffer) PendingSeqs() []message.SeqNum {
	res := make([]message.SeqNum, 0, len(b.pending))
	for k := range b.pending {
		res = append(res, k)
	}
	return res
}
