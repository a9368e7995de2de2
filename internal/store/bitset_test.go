package store

import "testing"

func TestBitSet(t *testing.T) {
	s := NewBitSet(12)
	if len(s.Bits) != 2 {
		t.Fatalf("bits length = %d", len(s.Bits))
	}
	s.Set(0)
	s.Set(9)
	s.Set(9)
	if s.Size != 2 {
		t.Errorf("size = %d, want 2", s.Size)
	}
	if !s.IsSet(0) || !s.IsSet(9) || s.IsSet(1) {
		t.Errorf("wrong bits: %+v", s)
	}
}

func TestBitSetUnion(t *testing.T) {
	a := NewBitSet(12)
	a.Set(0)
	a.Set(3)
	b := NewBitSet(12)
	b.Set(3)
	b.Set(11)
	a.Union(b)
	if a.Size != 3 {
		t.Errorf("union size = %d, want 3", a.Size)
	}
	for _, i := range []int{0, 3, 11} {
		if !a.IsSet(i) {
			t.Errorf("bit %d missing after union", i)
		}
	}
	// b is untouched.
	if b.IsSet(0) || b.Size != 2 {
		t.Errorf("union mutated operand: %+v", b)
	}
}

func TestBitSetUnionLengthMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("mismatched lengths should panic")
		}
	}()
	NewBitSet(8).Union(NewBitSet(16))
}
