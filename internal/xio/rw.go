package xio

import (
	"io"
	"sync/atomic"
)

// CountReaderは、読み込んだバイト数を数えるio.Readerです。
//
// Countは読み込み中のゴルーチンとは別のゴルーチンから呼び出すことができます。
type CountReader struct {
	io.Reader
	n atomic.Uint64
}

func NewCountReader(rd io.Reader) *CountReader {
	return &CountReader{
		Reader: rd,
	}
}

func (r *CountReader) Read(bs []byte) (int, error) {
	n, err := r.Reader.Read(bs)
	r.n.Add(uint64(n))
	return n, err
}

// Countは、これまでに読み込んだバイト数を返却します。
func (r *CountReader) Count() uint64 {
	if r == nil {
		return 0
	}
	return r.n.Load()
}

// CountWriterは、書き込んだバイト数を数えるio.Writerです。
type CountWriter struct {
	io.Writer
	n atomic.Uint64
}

func NewCountWriter(wr io.Writer) *CountWriter {
	return &CountWriter{
		Writer: wr,
	}
}

func (w *CountWriter) Write(bs []byte) (int, error) {
	n, err := w.Writer.Write(bs)
	w.n.Add(uint64(n))
	return n, err
}

// Countは、これまでに書き込んだバイト数を返却します。
func (w *CountWriter) Count() uint64 {
	if w == nil {
		return 0
	}
	return w.n.Load()
}
