// Package idspace implements the Chord identifier-space primitives: hashing
// addresses and keys onto a fixed-width ring, the modular arc membership
// test used everywhere ownership is decided, and finger spacing.
//
// Centralizing these in one package keeps the three places that need them
// (finger-table construction, key ownership, notify validation) from
// drifting out of sync with each other.
package idspace

import (
	"crypto/sha1"
	"fmt"
	"math/big"
)

// Space parameterizes the ring: m bits of identifier space, N = 2^m points.
type Space struct {
	M int
	N uint64
}

// New returns a Space with a ring of 2^m identifiers. m must be small
// enough that 2^m fits in a uint64 (m <= 63); Chord's default is 16.
func New(m int) Space {
	return Space{M: m, N: uint64(1) << uint(m)}
}

// ID hashes s with SHA-1 and keeps the first ceil(m/4) hex digits of the
// digest, returning that hex string and its numeric value mod N. When m is
// a multiple of 4 this is exactly the first m bits; otherwise the numeric
// value is the low m bits of the first 4*ceil(m/4) bits, not the first m.
func (sp Space) ID(s []byte) (hex string, numeric uint64) {
	sum := sha1.Sum(s)
	hexDigits := (sp.M + 3) / 4
	full := fmt.Sprintf("%x", sum[:])
	if len(full) < hexDigits {
		hexDigits = len(full)
	}
	truncated := full[:hexDigits]

	n := new(big.Int)
	n.SetString(truncated, 16)
	mod := new(big.Int).SetUint64(sp.N)
	n.Mod(n, mod)
	return truncated, n.Uint64()
}

// Between reports whether x lies in the arc that runs clockwise from a to
// b, with inclusivity at each endpoint controlled by inclL/inclR.
//
// When a == b the arc covers the whole ring if either endpoint is
// inclusive, and is otherwise the whole ring except a itself.
func Between(x, a, b uint64, inclL, inclR bool, ringSize uint64) bool {
	left, right := a, b
	if left != right {
		if inclL {
			left = (left - 1 + ringSize) % ringSize
		}
		if inclR {
			right = (right + 1) % ringSize
		}
	} else {
		return inclL || inclR || x != a
	}

	if left < right {
		return left < x && x < right
	}
	max, min := left, right
	if right > left {
		max, min = right, left
	}
	return x > max || x < min
}

// FingerTarget returns (selfID + 2^i) mod N, the ring position that
// finger table entry i should resolve to.
func (sp Space) FingerTarget(selfID uint64, i int) uint64 {
	offset := new(big.Int).Lsh(big.NewInt(1), uint(i))
	base := new(big.Int).SetUint64(selfID)
	sum := new(big.Int).Add(base, offset)
	mod := new(big.Int).SetUint64(sp.N)
	sum.Mod(sum, mod)
	return sum.Uint64()
}
