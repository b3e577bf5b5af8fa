package approval

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MaxBitfieldSize is the hard cap on the declared length of any
// candidate or core bitfield accepted from the network. Bitfields
// longer than this are a protocol violation, not a capacity problem:
// no relay block schedules anywhere near this many candidates.
const MaxBitfieldSize = 500

// Bitfield is a compact index set with an explicit declared length.
// The zero value is an empty bitfield of length zero.
//
// A Bitfield received from the network is only meaningful if it is
// well-formed: its highest set bit must be its last declared bit, so
// the declared length carries no slack that could be abused to inflate
// message size.
type Bitfield struct {
	bits *bitset.BitSet
}

// NewBitfield returns an empty bitfield with the given declared length.
func NewBitfield(length uint) Bitfield {
	return Bitfield{bits: bitset.New(length)}
}

// BitfieldFromIndices builds a minimal well-formed bitfield whose set
// bits are exactly the given indices.
func BitfieldFromIndices(indices ...uint) Bitfield {
	var max uint
	for _, i := range indices {
		if i+1 > max {
			max = i + 1
		}
	}
	b := Bitfield{bits: bitset.New(max)}
	for _, i := range indices {
		b.bits.Set(i)
	}
	return b
}

// Len returns the declared length in bits.
func (b Bitfield) Len() uint {
	if b.bits == nil {
		return 0
	}
	return b.bits.Len()
}

// Count returns the number of set bits.
func (b Bitfield) Count() uint {
	if b.bits == nil {
		return 0
	}
	return b.bits.Count()
}

// Test reports whether bit i is set.
func (b Bitfield) Test(i uint) bool {
	return b.bits != nil && b.bits.Test(i)
}

// Indices returns the set bits in ascending order.
func (b Bitfield) Indices() []uint {
	if b.bits == nil {
		return nil
	}
	out := make([]uint, 0, b.bits.Count())
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

// Intersects reports whether the two bitfields share any set bit.
func (b Bitfield) Intersects(other Bitfield) bool {
	if b.bits == nil || other.bits == nil {
		return false
	}
	return b.bits.IntersectionCardinality(other.bits) > 0
}

// Contains reports whether every set bit of other is also set in b.
func (b Bitfield) Contains(other Bitfield) bool {
	if other.bits == nil || other.bits.Count() == 0 {
		return true
	}
	if b.bits == nil {
		return false
	}
	return other.bits.IntersectionCardinality(b.bits) == other.bits.Count()
}

// Equal reports whether the two bitfields have identical declared
// length and identical set bits.
func (b Bitfield) Equal(other Bitfield) bool {
	if b.Len() != other.Len() {
		return false
	}
	if b.bits == nil || other.bits == nil {
		return b.Count() == other.Count()
	}
	return b.bits.Equal(other.bits)
}

// WellFormed reports whether the bitfield's highest set bit is its last
// declared bit. Empty bitfields are not well-formed: a claim over no
// candidates is meaningless on the wire.
func (b Bitfield) WellFormed() bool {
	n := b.Len()
	return n > 0 && b.Test(n-1)
}

// Key returns a byte-exact representation usable as a map key. Two
// bitfields have equal keys iff Equal reports true.
func (b Bitfield) Key() string {
	if b.bits == nil {
		return ""
	}
	data, _ := b.bits.MarshalBinary()
	return string(data)
}

func (b Bitfield) String() string {
	if b.bits == nil {
		return "[]"
	}
	return fmt.Sprintf("%v/%d", b.Indices(), b.Len())
}

// MarshalBinary implements encoding.BinaryMarshaler, delegating to the
// underlying bit set. The CBOR codec picks this up for wire encoding.
func (b Bitfield) MarshalBinary() ([]byte, error) {
	if b.bits == nil {
		return bitset.New(0).MarshalBinary()
	}
	return b.bits.MarshalBinary()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Bitfield) UnmarshalBinary(data []byte) error {
	bits := new(bitset.BitSet)
	if err := bits.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("could not decode bitfield: %w", err)
	}
	b.bits = bits
	return nil
}

// CandidateBitfield indexes candidates within a single relay block.
type CandidateBitfield = Bitfield

// CoreBitfield indexes availability cores claimed by an assignment
// certificate.
type CoreBitfield = Bitfield
