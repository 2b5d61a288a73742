// Package msfz implements the MSFZ container format, a compressed variant of
// MSF used for PDZ files: instead of a block directory, each stream is a
// list of fragments that point either directly into the file or into a
// shared table of compressed chunks.
package msfz

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Magic is the 32-byte MSFZ container signature.
const Magic = "Microsoft MSFZ Container\r\n\x1aALD\x00\x00"

// MagicSize is the length of Magic in bytes.
const MagicSize = 32

// HeaderSize is the size of the fixed MSFZ header.
const HeaderSize = 68

// Compression codes used by chunk table entries.
const (
	CompressionNone    uint8 = 0
	CompressionZstd    uint8 = 1
	CompressionDeflate uint8 = 2
)

var (
	// ErrInvalidMagic is returned when a file does not start with the MSFZ
	// signature.
	ErrInvalidMagic = errors.New("msfz: invalid magic signature")
	// ErrTruncated is returned when the header, chunk table, or stream
	// directory run past the end of the supplied data.
	ErrTruncated = errors.New("msfz: truncated container")
	// ErrUnsupportedCompression is returned for a chunk table entry whose
	// compression code this package does not implement.
	ErrUnsupportedCompression = errors.New("msfz: unsupported compression code")
	// ErrBadFragment is returned when a stream fragment references a chunk
	// index or byte range outside what the container describes.
	ErrBadFragment = errors.New("msfz: fragment out of range")
)

// Header is the fixed-size MSFZ file header.
type Header struct {
	Magic                  [MagicSize]byte
	Version                uint32
	NumChunks              uint32
	ChunkTableOffset       uint64
	NumStreams             uint32
	StreamDirectoryOffset  uint64
	StreamDirectorySize    uint64
}

// ParseHeader decodes the fixed header at the start of an MSFZ file.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}
	var h Header
	copy(h.Magic[:], data[0:MagicSize])
	if string(h.Magic[:]) != Magic {
		return nil, ErrInvalidMagic
	}
	off := MagicSize
	h.Version = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.NumChunks = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.ChunkTableOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	h.NumStreams = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.StreamDirectoryOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	h.StreamDirectorySize = binary.LittleEndian.Uint64(data[off:])
	off += 8
	return &h, nil
}

// Serialize encodes the header back to its fixed-size on-disk form.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:MagicSize], []byte(Magic))
	off := MagicSize
	binary.LittleEndian.PutUint32(buf[off:], h.Version)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.NumChunks)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.ChunkTableOffset)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.NumStreams)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.StreamDirectoryOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.StreamDirectorySize)
	off += 8
	return buf
}

// ChunkEntry describes one compressed chunk: its location in the file and
// the algorithm used to produce it.
type ChunkEntry struct {
	Compression      uint8
	FileOffset       uint64
	CompressedSize   uint32
	UncompressedSize uint32
}

const chunkEntrySize = 1 + 8 + 4 + 4

// ParseChunkTable decodes numChunks consecutive ChunkEntry records.
func ParseChunkTable(data []byte, numChunks uint32) ([]ChunkEntry, error) {
	need := int(numChunks) * chunkEntrySize
	if len(data) < need {
		return nil, ErrTruncated
	}
	entries := make([]ChunkEntry, numChunks)
	off := 0
	for i := range entries {
		entries[i].Compression = data[off]
		off++
		entries[i].FileOffset = binary.LittleEndian.Uint64(data[off:])
		off += 8
		entries[i].CompressedSize = binary.LittleEndian.Uint32(data[off:])
		off += 4
		entries[i].UncompressedSize = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}
	return entries, nil
}

// SerializeChunkTable encodes a chunk table back to its on-disk form.
func SerializeChunkTable(entries []ChunkEntry) []byte {
	out := make([]byte, len(entries)*chunkEntrySize)
	off := 0
	for _, e := range entries {
		out[off] = e.Compression
		off++
		binary.LittleEndian.PutUint64(out[off:], e.FileOffset)
		off += 8
		binary.LittleEndian.PutUint32(out[off:], e.CompressedSize)
		off += 4
		binary.LittleEndian.PutUint32(out[off:], e.UncompressedSize)
		off += 4
	}
	return out
}

// FragmentKind distinguishes a directly-addressed fragment from one that
// lives inside a compressed chunk.
type FragmentKind uint8

const (
	// FragmentUncompressed points directly at a byte range in the file.
	FragmentUncompressed FragmentKind = 0
	// FragmentCompressed points at a byte range within a decompressed chunk.
	FragmentCompressed FragmentKind = 1
)

// Fragment is one contiguous piece of a stream's contents.
type Fragment struct {
	Kind FragmentKind

	// Valid when Kind == FragmentUncompressed.
	FileOffset uint64
	Length     uint32

	// Valid when Kind == FragmentCompressed.
	ChunkIndex uint32
	ChunkOff   uint32
}

const fragmentSize = 1 + 8 + 4 + 4 // kind + (file offset, or chunk index in the low 32 bits) + length + chunkOff

// StreamDirectory maps each stream index to its ordered fragment list.
type StreamDirectory struct {
	Fragments [][]Fragment
}

// ParseStreamDirectory decodes the fragment-based stream directory. Layout:
// u32 numStreams, then per stream a u32 fragment count followed by that many
// fixed-size Fragment records.
func ParseStreamDirectory(data []byte) (*StreamDirectory, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	numStreams := binary.LittleEndian.Uint32(data[0:4])
	off := 4

	dir := &StreamDirectory{Fragments: make([][]Fragment, numStreams)}
	for s := uint32(0); s < numStreams; s++ {
		if off+4 > len(data) {
			return nil, ErrTruncated
		}
		numFrags := binary.LittleEndian.Uint32(data[off:])
		off += 4

		frags := make([]Fragment, numFrags)
		for i := range frags {
			if off+fragmentSize > len(data) {
				return nil, ErrTruncated
			}
			var f Fragment
			f.Kind = FragmentKind(data[off])
			off++
			a := binary.LittleEndian.Uint64(data[off:])
			off += 8
			f.Length = binary.LittleEndian.Uint32(data[off:])
			off += 4
			b := binary.LittleEndian.Uint32(data[off:])
			off += 4

			if f.Kind == FragmentCompressed {
				f.ChunkIndex = uint32(a)
				f.ChunkOff = b
			} else {
				f.FileOffset = a
			}
			frags[i] = f
		}
		dir.Fragments[s] = frags
	}
	return dir, nil
}

// Serialize encodes the stream directory back to its on-disk form.
func (d *StreamDirectory) Serialize() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(d.Fragments)))

	for _, frags := range d.Fragments {
		var fc [4]byte
		binary.LittleEndian.PutUint32(fc[:], uint32(len(frags)))
		out = append(out, fc[:]...)

		for _, f := range frags {
			rec := make([]byte, fragmentSize)
			rec[0] = byte(f.Kind)
			if f.Kind == FragmentCompressed {
				binary.LittleEndian.PutUint64(rec[1:], uint64(f.ChunkIndex))
			} else {
				binary.LittleEndian.PutUint64(rec[1:], f.FileOffset)
			}
			binary.LittleEndian.PutUint32(rec[9:], f.Length)
			binary.LittleEndian.PutUint32(rec[13:], f.ChunkOff)
			out = append(out, rec...)
		}
	}
	return out
}

// NumStreams returns the number of streams described by the directory.
func (d *StreamDirectory) NumStreams() uint32 {
	return uint32(len(d.Fragments))
}

// StreamLength returns the total byte length of a stream's reassembled
// contents.
func (d *StreamDirectory) StreamLength(streamIndex uint32) (uint32, error) {
	if streamIndex >= uint32(len(d.Fragments)) {
		return 0, ErrBadFragment
	}
	var total uint32
	for _, f := range d.Fragments[streamIndex] {
		total += f.Length
	}
	return total, nil
}
