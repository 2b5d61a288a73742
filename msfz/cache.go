package msfz

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

// chunkCache decompresses chunks on demand and keeps the most recently used
// one around, matching the "simple last-chunk cache by default" guidance:
// PDB reads overwhelmingly touch one stream (hence one run of chunks) at a
// time, so a size-1 cache already avoids most repeat work. A
// singleflight.Group collapses concurrent requests for the same chunk index
// into a single decompression even though the cache slot itself is only
// ever touched by the request currently holding mu.
type chunkCache struct {
	r      io.ReaderAt
	chunks []ChunkEntry

	mu       sync.Mutex
	lastIdx  uint32
	lastData []byte
	lastOK   bool

	group singleflight.Group
}

func newChunkCache(r io.ReaderAt, chunks []ChunkEntry) *chunkCache {
	return &chunkCache{r: r, chunks: chunks}
}

// get returns the fully decompressed bytes for chunk index idx.
func (c *chunkCache) get(idx uint32) ([]byte, error) {
	c.mu.Lock()
	if c.lastOK && c.lastIdx == idx {
		data := c.lastData
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(keyFor(idx), func() (any, error) {
		return c.decompress(idx)
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)

	c.mu.Lock()
	c.lastIdx = idx
	c.lastData = data
	c.lastOK = true
	c.mu.Unlock()

	return data, nil
}

func (c *chunkCache) decompress(idx uint32) ([]byte, error) {
	if idx >= uint32(len(c.chunks)) {
		return nil, ErrBadFragment
	}
	entry := c.chunks[idx]

	raw := make([]byte, entry.CompressedSize)
	if _, err := c.r.ReadAt(raw, int64(entry.FileOffset)); err != nil {
		return nil, errors.Wrapf(err, "msfz: reading chunk %d", idx)
	}

	switch entry.Compression {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "msfz: zstd init for chunk %d", idx)
		}
		defer dec.Close()
		out := make([]byte, 0, entry.UncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, dec); err != nil {
			return nil, errors.Wrapf(err, "msfz: zstd decompress chunk %d", idx)
		}
		return buf.Bytes(), nil
	case CompressionDeflate:
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		out := make([]byte, 0, entry.UncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, fr); err != nil {
			return nil, errors.Wrapf(err, "msfz: deflate decompress chunk %d", idx)
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnsupportedCompression
	}
}

func keyFor(idx uint32) string {
	return string([]byte{byte(idx), byte(idx >> 8), byte(idx >> 16), byte(idx >> 24)})
}
