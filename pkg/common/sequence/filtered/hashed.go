package filtered

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// KeySet tracks structural keys that are not usable as Go map keys, such as
// slices and maps. Keys are encoded with msgpack (map keys sorted) and
// bucketed by their xxhash digest; collisions fall back to comparing the
// encoded bytes.
type KeySet struct {
	buckets map[uint64][][]byte
	buf     bytes.Buffer
	enc     *msgpack.Encoder
}

// NewKeySet creates an empty key set
func NewKeySet() *KeySet {
	ks := &KeySet{buckets: make(map[uint64][][]byte)}
	ks.enc = msgpack.NewEncoder(&ks.buf).SetSortMapKeys(true)
	return ks
}

// Add inserts key and reports whether it was not already present
func (ks *KeySet) Add(key any) (bool, error) {
	ks.buf.Reset()
	if err := ks.enc.Encode(key); err != nil {
		return false, fmt.Errorf("%w: cannot encode distinct key %T: %v", sequence.ErrConfiguration, key, err)
	}
	encoded := ks.buf.Bytes()
	sum := xxhash.Sum64(encoded)

	for _, existing := range ks.buckets[sum] {
		if bytes.Equal(existing, encoded) {
			return false, nil
		}
	}
	ks.buckets[sum] = append(ks.buckets[sum], bytes.Clone(encoded))
	return true, nil
}

// Len returns the number of distinct keys
func (ks *KeySet) Len() int {
	n := 0
	for _, b := range ks.buckets {
		n += len(b)
	}
	return n
}

// DistinctHashed yields the first element for each structurally distinct key.
// Unlike DistinctBy the key may be any msgpack-encodable value. A key that
// cannot be encoded is a programming error and panics.
func DistinctHashed[T any](source sequence.Sequence[T], keyOf func(T) any) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		seen := NewKeySet()
		return NewFilteredCursor(source.Iterate(), func(v T) bool {
			added, err := seen.Add(keyOf(v))
			if err != nil {
				panic(err)
			}
			return added
		})
	})
}
