package msfz

import (
	"io"

	"github.com/cockroachdb/errors"
)

// File is an opened, read-only MSFZ container.
type File struct {
	r         io.ReaderAt
	header    *Header
	chunks    []ChunkEntry
	directory *StreamDirectory
	cache     *chunkCache
}

// Open parses the header, chunk table, and stream directory of an MSFZ
// container backed by r, whose total size is size.
func Open(r io.ReaderAt, size int64) (*File, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, errors.Wrap(err, "msfz: reading header")
	}
	header, err := ParseHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	chunkTableSize := int64(header.NumChunks) * chunkEntrySize
	if header.ChunkTableOffset+uint64(chunkTableSize) > uint64(size) {
		return nil, ErrTruncated
	}
	chunkBuf := make([]byte, chunkTableSize)
	if chunkTableSize > 0 {
		if _, err := r.ReadAt(chunkBuf, int64(header.ChunkTableOffset)); err != nil {
			return nil, errors.Wrap(err, "msfz: reading chunk table")
		}
	}
	chunks, err := ParseChunkTable(chunkBuf, header.NumChunks)
	if err != nil {
		return nil, err
	}

	if header.StreamDirectoryOffset+header.StreamDirectorySize > uint64(size) {
		return nil, ErrTruncated
	}
	dirBuf := make([]byte, header.StreamDirectorySize)
	if len(dirBuf) > 0 {
		if _, err := r.ReadAt(dirBuf, int64(header.StreamDirectoryOffset)); err != nil {
			return nil, errors.Wrap(err, "msfz: reading stream directory")
		}
	}
	directory, err := ParseStreamDirectory(dirBuf)
	if err != nil {
		return nil, err
	}

	return &File{
		r:         r,
		header:    header,
		chunks:    chunks,
		directory: directory,
		cache:     newChunkCache(r, chunks),
	}, nil
}

// NumStreams returns the number of streams in the container.
func (f *File) NumStreams() uint32 {
	return f.directory.NumStreams()
}

// StreamExists reports whether streamIndex has any fragments.
func (f *File) StreamExists(streamIndex uint32) bool {
	return streamIndex < uint32(len(f.directory.Fragments)) && len(f.directory.Fragments[streamIndex]) > 0
}

// ReadStream reassembles a stream's full contents by walking its fragment
// list, pulling uncompressed fragments straight from the file and
// compressed ones through the chunk cache.
func (f *File) ReadStream(streamIndex uint32) ([]byte, error) {
	if streamIndex >= uint32(len(f.directory.Fragments)) {
		return nil, ErrBadFragment
	}

	total, err := f.directory.StreamLength(streamIndex)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, total)

	for _, frag := range f.directory.Fragments[streamIndex] {
		switch frag.Kind {
		case FragmentUncompressed:
			buf := make([]byte, frag.Length)
			if _, err := f.r.ReadAt(buf, int64(frag.FileOffset)); err != nil {
				return nil, errors.Wrapf(err, "msfz: reading stream %d fragment", streamIndex)
			}
			out = append(out, buf...)
		case FragmentCompressed:
			chunk, err := f.cache.get(frag.ChunkIndex)
			if err != nil {
				return nil, err
			}
			end := int(frag.ChunkOff) + int(frag.Length)
			if end > len(chunk) {
				return nil, ErrBadFragment
			}
			out = append(out, chunk[frag.ChunkOff:end]...)
		default:
			return nil, ErrBadFragment
		}
	}
	return out, nil
}

// Header returns the parsed container header.
func (f *File) Header() *Header {
	return f.header
}
