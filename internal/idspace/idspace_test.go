package idspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDTruncatesToRingWidth(t *testing.T) {
	sp := New(16)
	hex, numeric := sp.ID([]byte("node-a:9000"))
	require.Len(t, hex, 4)
	assert.Less(t, numeric, sp.N)

	// hashing is deterministic
	hex2, numeric2 := sp.ID([]byte("node-a:9000"))
	assert.Equal(t, hex, hex2)
	assert.Equal(t, numeric, numeric2)
}

func TestBetweenReferenceModel(t *testing.T) {
	const ring = 8

	// reference() mirrors the spec's prose definition directly, independent
	// of the production implementation, to cross-check P3.
	reference := func(x, a, b uint64, inclL, inclR bool) bool {
		left, right := a, b
		if left == right {
			return inclL || inclR || x != left
		}
		if inclL {
			left = (left - 1 + ring) % ring
		}
		if inclR {
			right = (right + 1) % ring
		}
		if left < right {
			return left < x && x < right
		}
		if x > left && x > right {
			return true
		}
		if x < left && x < right {
			return true
		}
		return false
	}

	for a := uint64(0); a < ring; a++ {
		for b := uint64(0); b < ring; b++ {
			for x := uint64(0); x < ring; x++ {
				for _, incl := range [][2]bool{{false, false}, {false, true}, {true, false}, {true, true}} {
					got := Between(x, a, b, incl[0], incl[1], ring)
					want := reference(x, a, b, incl[0], incl[1])
					if got != want {
						t.Fatalf("Between(%d,%d,%d,%v,%v) = %v, want %v", x, a, b, incl[0], incl[1], got, want)
					}
				}
			}
		}
	}
}

func TestBetweenEqualEndpointsWholeRingOnlyWhenInclusive(t *testing.T) {
	assert.True(t, Between(5, 3, 3, true, false, 16))
	assert.True(t, Between(5, 3, 3, false, true, 16))
	assert.True(t, Between(5, 3, 3, false, false, 16))
	assert.False(t, Between(3, 3, 3, false, false, 16))
}

func TestFingerTargetWraps(t *testing.T) {
	sp := New(4) // N = 16
	assert.Equal(t, uint64(1), sp.FingerTarget(0, 0))
	assert.Equal(t, uint64(0), sp.FingerTarget(15, 0))
	assert.Equal(t, uint64(7), sp.FingerTarget(15, 3))
}
