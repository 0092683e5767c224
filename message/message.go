/*
Package message は、マルチパス接続で使用する識別子と、ワイヤー上のヘッダーを定義するパッケージです。

ヘッダーの多バイト整数は全てビッグエンディアンでエンコードします。
*/
package message

// Headerは、バイナリにエンコード可能なヘッダーのインターフェースです。
//
// DecodeはSizeが返却するバイト数と同じだけ読み進めます。
type Header interface {
	// Sizeは、シリアライズ後のバイト数を返却します。
	Size() int
	// AppendBinaryは、bにヘッダーを追記したスライスを返却します。
	AppendBinary(b []byte) ([]byte, error)
	// Decodeは、bsの先頭からヘッダーを読み出し、消費したバイト数を返却します。
	Decode(bs []byte) (int, error)
}

var (
	_ Header = (*HandshakeHeader)(nil)
	_ Header = (*PathHeader)(nil)
	_ Header = (*DataSeqHeader)(nil)
	_ Header = (*ResolutionHeader)(nil)
)

// Marshalは、ヘッダーをバイト列にエンコードします。
func Marshal(h Header) ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, h.Size()))
}
