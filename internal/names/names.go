// Package names implements the PDB "/names" stream: a hash table mapping
// byte-string names to the offsets of their NUL-terminated copies in a
// shared buffer, so other streams can reference a name by a single u32
// instead of repeating it inline.
package names

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/internal/hash"
)

// Index is a byte offset into the names buffer identifying one string.
type Index uint32

const (
	signature = 0xEFFEEFFE
	version1  = 1
)

var (
	// ErrBadSignature is returned when the stream does not begin with the
	// expected /names magic.
	ErrBadSignature = errors.New("names: bad signature")
	// ErrUnsupportedVersion is returned for a version this package does not
	// know how to decode.
	ErrUnsupportedVersion = errors.New("names: unsupported version")
	// ErrTruncated is returned when the stream ends before its header says
	// it should.
	ErrTruncated = errors.New("names: truncated stream")
	// ErrBadOffset is returned when a caller asks for a string at an offset
	// outside the string buffer, or one whose string has no NUL terminator
	// before the end of the buffer.
	ErrBadOffset = errors.New("names: offset out of range")
)

// Table is a parsed /names stream: the raw string buffer plus a hash bucket
// array used to look names up by value.
type Table struct {
	buf     []byte   // the packed, NUL-terminated string buffer (byte 0 is always an empty string)
	buckets []uint32 // bucket -> offset into buf, or 0 for empty
}

// Parse decodes a /names stream.
func Parse(data []byte) (*Table, error) {
	if len(data) < 12 {
		return nil, ErrTruncated
	}
	sig := binary.LittleEndian.Uint32(data[0:4])
	if sig != signature {
		return nil, ErrBadSignature
	}
	ver := binary.LittleEndian.Uint32(data[4:8])
	if ver != version1 {
		return nil, ErrUnsupportedVersion
	}

	bufLen := binary.LittleEndian.Uint32(data[8:12])
	off := 12
	if off+int(bufLen) > len(data) {
		return nil, ErrTruncated
	}
	buf := data[off : off+int(bufLen)]
	off += int(bufLen)

	if off+4 > len(data) {
		return nil, ErrTruncated
	}
	numBuckets := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	need := int(numBuckets) * 4
	if off+need > len(data) {
		return nil, ErrTruncated
	}
	buckets := make([]uint32, numBuckets)
	for i := range buckets {
		buckets[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}

	return &Table{buf: buf, buckets: buckets}, nil
}

// String returns the NUL-terminated string starting at the given offset.
func (t *Table) String(idx Index) (string, error) {
	off := int(idx)
	if off < 0 || off >= len(t.buf) {
		if off == 0 && len(t.buf) == 0 {
			return "", nil
		}
		return "", ErrBadOffset
	}
	end := off
	for end < len(t.buf) && t.buf[end] != 0 {
		end++
	}
	if end >= len(t.buf) {
		return "", ErrBadOffset
	}
	return string(t.buf[off:end]), nil
}

// Find looks up name and returns its Index and whether it was present.
func (t *Table) Find(name string) (Index, bool) {
	if len(t.buckets) == 0 {
		return 0, false
	}
	h := hash.U32([]byte(name)) % uint32(len(t.buckets))
	start := h
	for {
		off := t.buckets[h]
		if off == 0 {
			s, err := t.String(0)
			if err == nil && len(t.buf) > 0 && s == name {
				return Index(0), true
			}
			return 0, false
		}
		if s, err := t.String(Index(off)); err == nil && s == name {
			return Index(off), true
		}
		h = (h + 1) % uint32(len(t.buckets))
		if h == start {
			return 0, false
		}
	}
}

// Len returns the number of occupied buckets (i.e. distinct names stored).
func (t *Table) Len() int {
	n := 0
	for _, off := range t.buckets {
		if off != 0 {
			n++
		}
	}
	return n
}

// Builder accumulates names for a fresh /names stream, deduplicating by
// value and packing each distinct string once into the output buffer.
type Builder struct {
	buf     []byte
	offsets map[string]uint32
}

// NewBuilder creates an empty Builder. Offset 0 is reserved for the empty
// string, matching the on-disk convention every reader relies on.
func NewBuilder() *Builder {
	return &Builder{
		buf:     []byte{0},
		offsets: map[string]uint32{"": 0},
	}
}

// Intern adds name to the buffer if not already present and returns its
// Index either way.
func (b *Builder) Intern(name string) Index {
	if off, ok := b.offsets[name]; ok {
		return Index(off)
	}
	off := uint32(len(b.buf))
	b.buf = append(b.buf, []byte(name)...)
	b.buf = append(b.buf, 0)
	b.offsets[name] = off
	return Index(off)
}

// Build serializes the accumulated names into a /names stream, choosing a
// bucket count of at least twice the distinct-name count so linear probing
// stays cheap.
func (b *Builder) Build() []byte {
	numBuckets := nextBucketCount(len(b.offsets))
	buckets := make([]uint32, numBuckets)

	for name, off := range b.offsets {
		if off == 0 {
			continue
		}
		h := hash.U32([]byte(name)) % uint32(numBuckets)
		for buckets[h] != 0 {
			h = (h + 1) % uint32(numBuckets)
		}
		buckets[h] = off
	}

	out := make([]byte, 0, 12+len(b.buf)+4+len(buckets)*4)
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], signature)
	binary.LittleEndian.PutUint32(hdr[4:8], version1)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(b.buf)))
	out = append(out, hdr[:]...)
	out = append(out, b.buf...)

	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(numBuckets))
	out = append(out, n[:]...)
	for _, off := range buckets {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], off)
		out = append(out, w[:]...)
	}
	return out
}

func nextBucketCount(numNames int) int {
	n := numNames*2 + 1
	if n < 7 {
		n = 7
	}
	return n
}
