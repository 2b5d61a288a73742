package msfz

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// defaultChunkTarget is the uncompressed byte budget a Writer tries to fill
// before closing out a chunk and starting the next one.
const defaultChunkTarget = 1 << 20 // 1 MiB

// Writer builds a fresh MSFZ container, one stream at a time. Streams are
// written in order; each call to WriteStream either emits an uncompressed
// fragment directly or folds the data into the chunk currently being
// accumulated, compressing and flushing it once it reaches ChunkTarget.
type Writer struct {
	w    io.WriterAt
	off  uint64 // next free byte offset in the payload region, starting right after the header
	comp uint8

	// ChunkTarget overrides defaultChunkTarget when non-zero.
	ChunkTarget uint32

	curChunk  *bytes.Buffer
	chunks    []ChunkEntry
	directory StreamDirectory
}

// NewWriter creates a Writer that compresses chunk payloads with the given
// compression code (CompressionZstd or CompressionDeflate; CompressionNone
// disables chunking and every WriteStream call becomes an uncompressed
// fragment). The header occupies the first HeaderSize bytes of w and is
// patched in by Finish once the final layout is known.
func NewWriter(w io.WriterAt, compression uint8) *Writer {
	return &Writer{w: w, comp: compression, curChunk: &bytes.Buffer{}, off: HeaderSize}
}

func (wr *Writer) write(p []byte) error {
	_, err := wr.w.WriteAt(p, int64(wr.off))
	return err
}

// WriteStream adds a new stream with the given contents and returns its
// assigned index. Streams must be added in index order starting from 0.
func (wr *Writer) WriteStream(data []byte) (uint32, error) {
	idx := uint32(len(wr.directory.Fragments))
	wr.directory.Fragments = append(wr.directory.Fragments, nil)

	if wr.comp == CompressionNone {
		frag := Fragment{Kind: FragmentUncompressed, FileOffset: wr.off, Length: uint32(len(data))}
		if err := wr.write(data); err != nil {
			return 0, errors.Wrap(err, "msfz: writing uncompressed fragment")
		}
		wr.off += uint64(len(data))
		wr.directory.Fragments[idx] = append(wr.directory.Fragments[idx], frag)
		return idx, nil
	}

	target := wr.ChunkTarget
	if target == 0 {
		target = defaultChunkTarget
	}

	remaining := data
	for len(remaining) > 0 {
		space := int(target) - wr.curChunk.Len()
		if space <= 0 {
			if err := wr.flushChunk(); err != nil {
				return 0, err
			}
			space = int(target)
		}
		n := len(remaining)
		if n > space {
			n = space
		}
		chunkOff := uint32(wr.curChunk.Len())
		wr.curChunk.Write(remaining[:n])
		wr.directory.Fragments[idx] = append(wr.directory.Fragments[idx], Fragment{
			Kind:       FragmentCompressed,
			ChunkIndex: uint32(len(wr.chunks)),
			ChunkOff:   chunkOff,
			Length:     uint32(n),
		})
		remaining = remaining[n:]

		if wr.curChunk.Len() >= int(target) {
			if err := wr.flushChunk(); err != nil {
				return 0, err
			}
		}
	}

	return idx, nil
}

func (wr *Writer) flushChunk() error {
	if wr.curChunk.Len() == 0 {
		return nil
	}
	uncompressed := wr.curChunk.Bytes()

	var compressed bytes.Buffer
	switch wr.comp {
	case CompressionZstd:
		enc, err := zstd.NewWriter(&compressed)
		if err != nil {
			return errors.Wrap(err, "msfz: zstd writer init")
		}
		if _, err := enc.Write(uncompressed); err != nil {
			return errors.Wrap(err, "msfz: zstd compress")
		}
		if err := enc.Close(); err != nil {
			return errors.Wrap(err, "msfz: zstd finish")
		}
	case CompressionDeflate:
		fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		if err != nil {
			return errors.Wrap(err, "msfz: deflate writer init")
		}
		if _, err := fw.Write(uncompressed); err != nil {
			return errors.Wrap(err, "msfz: deflate compress")
		}
		if err := fw.Close(); err != nil {
			return errors.Wrap(err, "msfz: deflate finish")
		}
	default:
		return ErrUnsupportedCompression
	}

	entry := ChunkEntry{
		Compression:      wr.comp,
		FileOffset:       wr.off,
		CompressedSize:   uint32(compressed.Len()),
		UncompressedSize: uint32(len(uncompressed)),
	}
	if err := wr.write(compressed.Bytes()); err != nil {
		return errors.Wrap(err, "msfz: writing compressed chunk")
	}
	wr.off += uint64(compressed.Len())
	wr.chunks = append(wr.chunks, entry)
	wr.curChunk.Reset()
	return nil
}

// Finish flushes any pending chunk and writes the chunk table, stream
// directory, and header, in that order, so a reader can always locate the
// directory via the header regardless of how the chunks were laid out.
func (wr *Writer) Finish() error {
	if err := wr.flushChunk(); err != nil {
		return err
	}

	chunkTableOff := wr.off
	chunkTableBytes := SerializeChunkTable(wr.chunks)
	if err := wr.write(chunkTableBytes); err != nil {
		return errors.Wrap(err, "msfz: writing chunk table")
	}
	wr.off += uint64(len(chunkTableBytes))

	dirOff := wr.off
	dirBytes := wr.directory.Serialize()
	if err := wr.write(dirBytes); err != nil {
		return errors.Wrap(err, "msfz: writing stream directory")
	}
	wr.off += uint64(len(dirBytes))

	header := Header{
		Version:               1,
		NumChunks:             uint32(len(wr.chunks)),
		ChunkTableOffset:      chunkTableOff,
		NumStreams:            wr.directory.NumStreams(),
		StreamDirectoryOffset: dirOff,
		StreamDirectorySize:   uint64(len(dirBytes)),
	}
	if _, err := wr.w.WriteAt(header.Serialize(), 0); err != nil {
		return errors.Wrap(err, "msfz: writing header")
	}
	return nil
}
