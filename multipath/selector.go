package multipath

// roundRobinは、送信先のパスを順番に選択するカーソルです。
//
// カーソルは呼び出しをまたいで保持されるため、連続する送信は全てのパスに均等に分散されます。
type roundRobin struct {
	cursor int
}

// nextは、cursorから順にokを満たす最初のインデックスを返却し、カーソルをその次へ進めます。
//
// 該当するものがない場合は-1を返却します。
func (r *roundRobin) next(n int, ok func(i int) bool) int {
	if n == 0 {
		return -1
	}
	if r.cursor >= n {
		r.cursor = 0
	}
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if ok(idx) {
			r.cursor = (idx + 1) % n
			return idx
		}
	}
	return -1
}

// removedは、長さnだった一覧からidx番目が取り除かれた時に、カーソルが指す要素を維持します。
func (r *roundRobin) removed(idx, n int) {
	if idx < r.cursor {
		r.cursor--
	}
	if r.cursor >= n-1 {
		r.cursor = 0
	}
}
