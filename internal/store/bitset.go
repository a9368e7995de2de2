package store

import "math/bits"

// BitSet tracks which topic indices of a package a user has played.
// Size always equals the popcount of Bits; bits are only ever set,
// never cleared.
type BitSet struct {
	Size int    `json:"size"`
	Bits []byte `json:"bits"`
}

// NewBitSet returns an empty bitmap over n topic indices.
func NewBitSet(n int) *BitSet {
	return &BitSet{Bits: make([]byte, (n+7)/8)}
}

// Set marks an index as played.
func (s *BitSet) Set(index int) {
	if s.IsSet(index) {
		return
	}
	s.Size++
	s.Bits[index/8] |= 1 << (index % 8)
}

// IsSet reports whether an index is marked.
func (s *BitSet) IsSet(index int) bool {
	return s.Bits[index/8]>>(index%8)&1 == 1
}

// Union merges another bitmap of the same length into this one and
// recomputes Size.
func (s *BitSet) Union(other *BitSet) {
	if len(s.Bits) != len(other.Bits) {
		panic("store: bitset length mismatch")
	}
	s.Size = 0
	for i := range s.Bits {
		s.Bits[i] |= other.Bits[i]
		s.Size += bits.OnesCount8(s.Bits[i])
	}
}
