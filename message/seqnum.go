package message

// SeqNumは、コネクション単位のバイトストリームオフセットです。
//
// 比較はシリアル番号演算で行うため、2^64でラップアラウンドしても順序を保ちます。
// ただし比較対象の差は2^63未満である必要があります。
type SeqNum uint64

// Addは、nバイト進めたシーケンス番号を返却します。
func (s SeqNum) Add(n int) SeqNum {
	return s + SeqNum(n)
}

// Lessは、sがoより前であるかどうかを返却します。
func (s SeqNum) Less(o SeqNum) bool {
	return int64(s-o) < 0
}

// Diffは、oからsまでの距離を返却します。
func (s SeqNum) Diff(o SeqNum) int64 {
	return int64(s - o)
}
