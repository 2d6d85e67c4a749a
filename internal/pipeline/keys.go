package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Surrogate key strategies.
const (
	KeysMonotonic = "monotonic"
	KeysHash      = "hash"
)

// KeyGenerator assigns surrogate keys to the distinct natural keys of one
// dimension. The result is parallel to naturalKeys and collision-free within
// the call.
type KeyGenerator interface {
	Assign(naturalKeys []string) ([]int64, error)
}

// NewKeyGenerator returns the generator for strategy. An empty strategy means
// monotonic.
func NewKeyGenerator(strategy string, partitions int) (KeyGenerator, error) {
	switch strategy {
	case "", KeysMonotonic:
		return MonotonicKeys{Partitions: partitions}, nil
	case KeysHash:
		return HashKeys{}, nil
	default:
		return nil, fmt.Errorf("NewKeyGenerator: unknown key strategy %q (want %s or %s)", strategy, KeysMonotonic, KeysHash)
	}
}

// MonotonicKeys splits the keys into partitions and numbers each one from
// zero, with the partition index in the upper bits. Keys are unique and
// increasing but not consecutive, and change when the input changes.
type MonotonicKeys struct {
	Partitions int
}

func (m MonotonicKeys) Assign(naturalKeys []string) ([]int64, error) {
	keys := make([]int64, len(naturalKeys))
	for p, sp := range splitSpans(len(naturalKeys), m.Partitions) {
		for i := sp.start; i < sp.end; i++ {
			keys[i] = int64(p)<<partitionShift + int64(i-sp.start)
		}
	}
	return keys, nil
}

// HashKeys derives each key from its natural key, so the same member gets the
// same key on every run.
type HashKeys struct{}

func (HashKeys) Assign(naturalKeys []string) ([]int64, error) {
	keys := make([]int64, len(naturalKeys))
	seen := make(map[int64]string, len(naturalKeys))
	for i, nk := range naturalKeys {
		k := int64(xxhash.Sum64String(nk) & hashKeyMask)
		if prev, ok := seen[k]; ok && prev != nk {
			return nil, transformError("HashKeys", fmt.Errorf("surrogate key collision %d between %q and %q", k, prev, nk))
		}
		seen[k] = nk
		keys[i] = k
	}
	return keys, nil
}

// compositeKey encodes a tuple of optional values as one natural key. Each
// value is length-prefixed, so nil, the empty string and values containing
// any byte all encode distinctly.
func compositeKey(parts ...*string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == nil {
			b.WriteString("-;")
			continue
		}
		b.WriteString(strconv.Itoa(len(*p)))
		b.WriteByte(':')
		b.WriteString(*p)
	}
	return b.String()
}
