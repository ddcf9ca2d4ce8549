// Package bloom implements the set-membership primitive used to prune
// shards whose bloom filter cannot possibly contain any of a query's terms.
// The bit array itself is backed by github.com/bits-and-blooms/bitset
// (already part of the retrieval pack as a transitive dependency of the
// teacher's bleve index); this package only adds the double-hashing scheme
// and the opaque serialized form the routing index persists.
package bloom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/bits-and-blooms/bitset"
)

// Default size/hash-count per spec.md §4.2.
const (
	DefaultBits      = 10000
	DefaultHashCount = 5
)

// Filter is a Bloom filter over string terms. False negatives never occur;
// false positives are the tradeoff for the fixed-size representation.
type Filter struct {
	bits *bitset.BitSet
	m    uint
	k    uint
}

// New creates a Filter with m bits and k hash functions. m and k fall back
// to DefaultBits/DefaultHashCount when <= 0.
func New(m, k int) *Filter {
	if m <= 0 {
		m = DefaultBits
	}
	if k <= 0 {
		k = DefaultHashCount
	}
	return &Filter{
		bits: bitset.New(uint(m)),
		m:    uint(m),
		k:    uint(k),
	}
}

// indices computes the k bit positions for x using Kirsch-Mitzenmacher
// double hashing: h_i(x) = (h1(x) + i*h2(x)) mod m. Two independent base
// hashes (FNV-1a over the raw term and over the term with a fixed salt)
// stand in for two "random" hash functions.
func (f *Filter) indices(x string) []uint {
	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(x))
	sum1 := h1.Sum64()

	h2 := fnv.New64a()
	_, _ = h2.Write([]byte("mosaicdb-bloom-salt"))
	_, _ = h2.Write([]byte(x))
	sum2 := h2.Sum64()
	if sum2 == 0 {
		// Avoid a degenerate double-hash where every index collapses to h1.
		sum2 = 1
	}

	out := make([]uint, f.k)
	for i := uint(0); i < f.k; i++ {
		combined := sum1 + uint64(i)*sum2
		out[i] = uint(combined % uint64(f.m))
	}
	return out
}

// Add inserts a term into the filter.
func (f *Filter) Add(term string) {
	for _, idx := range f.indices(term) {
		f.bits.Set(idx)
	}
}

// Contains reports whether term may be a member. A false result is a
// guarantee of absence; a true result may be a false positive.
func (f *Filter) Contains(term string) bool {
	for _, idx := range f.indices(term) {
		if !f.bits.Test(idx) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether any of terms may be a member. Queries are
// disjunctive over terms per spec.md §4.6 step 2 (any-match, not
// all-match), so this is the predicate the shard router actually uses.
func (f *Filter) ContainsAny(terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, t := range terms {
		if f.Contains(t) {
			return true
		}
	}
	return false
}

// header is the fixed-size prefix of the serialized form, recording the
// parameters needed to reconstruct indices() on load.
type header struct {
	M uint64
	K uint64
}

// Marshal serializes the filter to an opaque byte string: an 16-byte
// (m, k) header followed by the bitset's own binary encoding.
func (f *Filter) Marshal() ([]byte, error) {
	bitBytes, err := f.bits.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("bloom: marshal bitset: %w", err)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, header{M: uint64(f.m), K: uint64(f.k)}); err != nil {
		return nil, fmt.Errorf("bloom: write header: %w", err)
	}
	buf.Write(bitBytes)
	return buf.Bytes(), nil
}

// Unmarshal reconstructs a Filter from its serialized form.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("bloom: serialized form too short (%d bytes)", len(data))
	}

	var h header
	r := bytes.NewReader(data[:16])
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("bloom: read header: %w", err)
	}

	bits := &bitset.BitSet{}
	if err := bits.UnmarshalBinary(data[16:]); err != nil {
		return nil, fmt.Errorf("bloom: unmarshal bitset: %w", err)
	}

	return &Filter{bits: bits, m: uint(h.M), k: uint(h.K)}, nil
}
