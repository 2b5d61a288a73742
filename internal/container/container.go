// Package container unifies MSF and MSFZ behind one read interface so the
// rest of the library can be written against a single abstraction instead
// of branching on which container format a given file happens to use.
package container

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/msf"
	"github.com/microsoft/pdb-rs-sub001/msfz"
)

// Container is the read surface common to both MSF and MSFZ containers.
type Container interface {
	NumStreams() uint32
	StreamExists(streamIndex uint32) bool
	ReadStream(streamIndex uint32) ([]byte, error)
	BlockSize() uint32
	Close() error
}

// msfContainer adapts *msf.File.
type msfContainer struct{ f *msf.File }

func (c *msfContainer) NumStreams() uint32 {
	n, _ := c.f.NumStreams()
	return n
}

func (c *msfContainer) StreamExists(streamIndex uint32) bool {
	ok, _ := c.f.StreamExists(streamIndex)
	return ok
}

func (c *msfContainer) ReadStream(streamIndex uint32) ([]byte, error) {
	return c.f.ReadStream(streamIndex)
}

func (c *msfContainer) BlockSize() uint32 { return c.f.BlockSize() }
func (c *msfContainer) Close() error      { return c.f.Close() }

// FromMSF wraps an already-opened *msf.File as a Container. Used by callers
// that need the concrete *msf.File too (e.g. to open an msf.Writer against
// its current directory/superblock for in-place modification).
func FromMSF(f *msf.File) Container {
	return &msfContainer{f: f}
}

// msfzContainer adapts *msfz.File. MSFZ has no notion of a block size; it
// reports 0 so callers treat it as "not applicable" rather than dividing by
// a bogus value.
type msfzContainer struct{ f *msfz.File }

func (c *msfzContainer) NumStreams() uint32                      { return c.f.NumStreams() }
func (c *msfzContainer) StreamExists(streamIndex uint32) bool    { return c.f.StreamExists(streamIndex) }
func (c *msfzContainer) ReadStream(streamIndex uint32) ([]byte, error) {
	return c.f.ReadStream(streamIndex)
}
func (c *msfzContainer) BlockSize() uint32 { return 0 }
func (c *msfzContainer) Close() error       { return nil }

// Open sniffs the container magic at the start of r and returns the matching
// Container implementation.
func Open(r io.ReaderAt, size int64) (Container, error) {
	magic := make([]byte, msfz.MagicSize)
	if _, err := r.ReadAt(magic, 0); err != nil {
		return nil, errors.Wrap(err, "container: reading magic")
	}

	if string(magic) == msfz.Magic {
		f, err := msfz.Open(r, size)
		if err != nil {
			return nil, err
		}
		return &msfzContainer{f: f}, nil
	}

	f, err := msf.NewFile(r, size)
	if err != nil {
		return nil, err
	}
	return &msfContainer{f: f}, nil
}
