// Package rfile provides the random-access file abstraction every container
// reader is built on: a plain io.ReaderAt (and, for writers, io.WriterAt)
// backed either by a memory mapping or by ordinary file-descriptor reads.
package rfile

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// File is a closable random-access view over a PDB container on disk.
type File struct {
	f   *os.File
	mm  mmap.MMap
	rw  bool
}

// OpenReadOnly memory-maps path for read-only access. Memory mapping avoids
// copying the whole file into the process just to read a handful of
// streams out of it.
func OpenReadOnly(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "rfile: open")
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rfile: mmap")
	}
	return &File{f: f, mm: mm}, nil
}

// OpenReadWrite opens path for read-write access via ordinary file
// descriptor I/O (not mmap, since a writer needs to grow the file as it
// allocates new blocks/chunks, which a fixed-size mapping cannot do).
func OpenReadWrite(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "rfile: open")
	}
	return &File{f: f, rw: true}, nil
}

// Create creates a new file at path for read-write access.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "rfile: create")
	}
	return &File{f: f, rw: true}, nil
}

// ReadAt implements io.ReaderAt.
func (r *File) ReadAt(p []byte, off int64) (int, error) {
	if r.mm != nil {
		if off < 0 || int(off) > len(r.mm) {
			return 0, errors.New("rfile: offset out of range")
		}
		n := copy(p, r.mm[off:])
		if n < len(p) {
			return n, errors.New("rfile: short read")
		}
		return n, nil
	}
	return r.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt. It returns a "file is read-only" error
// when the file was opened with OpenReadOnly.
func (r *File) WriteAt(p []byte, off int64) (int, error) {
	if !r.rw {
		return 0, errors.New("rfile: file is read-only")
	}
	return r.f.WriteAt(p, off)
}

// Size returns the current file size.
func (r *File) Size() (int64, error) {
	if r.mm != nil {
		return int64(len(r.mm)), nil
	}
	fi, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Close unmaps (if mapped) and closes the underlying file descriptor.
func (r *File) Close() error {
	var err error
	if r.mm != nil {
		err = r.mm.Unmap()
	}
	if cerr := r.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
