package multipath

import (
	"math/rand/v2"

	"github.com/aptpod/multipath-go/message"
)

// keySet は、使用中のConnKeyの集合です。イベントループの中でのみ使用します。
type keySet struct {
	inUse  map[message.ConnKey]struct{}
	random func() uint32
}

func newKeySet() *keySet {
	return &keySet{
		inUse:  make(map[message.ConnKey]struct{}),
		random: rand.Uint32,
	}
}

// generate は、使用中のものと重複しない0以外のキーを生成します。
func (s *keySet) generate() message.ConnKey {
	for {
		k := message.ConnKey(s.random())
		if k == 0 {
			continue
		}
		if _, ok := s.inUse[k]; ok {
			continue
		}
		s.inUse[k] = struct{}{}
		return k
	}
}

func (s *keySet) release(k message.ConnKey) {
	delete(s.inUse, k)
}

// connIDSet は、サーバーが割り当てたConnIDの集合です。イベントループの中でのみ使用します。
type connIDSet struct {
	inUse  map[message.ConnID]struct{}
	random func() uint64
}

func newConnIDSet() *connIDSet {
	return &connIDSet{
		inUse:  make(map[message.ConnID]struct{}),
		random: rand.Uint64,
	}
}

// generate は、生存中のコネクションと重複しない0以外のConnIDを生成します。
func (s *connIDSet) generate() message.ConnID {
	for {
		id := message.ConnID(s.random())
		if id == 0 {
			continue
		}
		if _, ok := s.inUse[id]; ok {
			continue
		}
		s.inUse[id] = struct{}{}
		return id
	}
}

func (s *connIDSet) release(id message.ConnID) {
	delete(s.inUse, id)
}
