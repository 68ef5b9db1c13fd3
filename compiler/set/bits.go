package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bits is a growable bitset over small non-negative ints.
	Bits struct {
		b  []uint64
		b0 [2]uint64
	}
)

func Make() Bits {
	s := Bits{}
	s.b = s.b0[:]

	return s
}

func (s Bits) Copy() Bits {
	c := Make()

	c.grow(len(s.b) - 1)
	copy(c.b, s.b)

	return c
}

func (s *Bits) Set(i int) {
	w, j := ij(i)

	s.grow(w)

	s.b[w] |= 1 << j
}

func (s *Bits) SetAll(is ...int) {
	for _, i := range is {
		s.Set(i)
	}
}

func (s Bits) Clear(i int) {
	w, j := ij(i)

	if w >= len(s.b) {
		return
	}

	s.b[w] &^= 1 << j
}

func (s Bits) IsSet(i int) bool {
	w, j := ij(i)

	if w >= len(s.b) {
		return false
	}

	return s.b[w]&(1<<j) != 0
}

func (s *Bits) Or(x Bits) {
	s.grow(len(x.b) - 1)

	for i, w := range x.b {
		s.b[i] |= w
	}
}

func (s Bits) And(x Bits) {
	for i := range s.b {
		if i >= len(x.b) {
			s.b[i] = 0
			continue
		}

		s.b[i] &= x.b[i]
	}
}

func (s Bits) AndNot(x Bits) {
	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i, w := range x.b[:n] {
		s.b[i] &^= w
	}
}

func (s Bits) Equal(x Bits) bool {
	n := len(s.b)
	if m := len(x.b); m > n {
		n = m
	}

	for i := 0; i < n; i++ {
		var a, b uint64

		if i < len(s.b) {
			a = s.b[i]
		}
		if i < len(x.b) {
			b = x.b[i]
		}

		if a != b {
			return false
		}
	}

	return true
}

func (s Bits) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}
}

func (s Bits) Size() (r int) {
	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

func (s Bits) Range(f func(i int) bool) {
	for w, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(w*64 + j) {
				return
			}
		}
	}
}

func (s *Bits) grow(w int) {
	for w >= len(s.b) {
		s.b = append(s.b, 0)
	}
}

func ij(i int) (int, int) {
	return i >> 6, i & 63
}

func (s Bits) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	b = e.AppendBreak(b)

	return b
}
