package msf

import (
	"bytes"
	"testing"
)

type memWriterAt struct {
	buf []byte
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memWriterAt) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func TestWriterCommitRoundTrip(t *testing.T) {
	mem := &memWriterAt{}
	w := NewWriter(mem, BlockSize4096)

	payload := bytes.Repeat([]byte{0x42}, 10_000)
	w.AddStream(payload) // stream 0
	w.AddStream([]byte("hello"))

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	f, err := NewFile(mem, int64(len(mem.buf)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer f.Close()

	got, err := f.ReadStream(0)
	if err != nil {
		t.Fatalf("ReadStream(0): %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stream 0 round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	got1, err := f.ReadStream(1)
	if err != nil {
		t.Fatalf("ReadStream(1): %v", err)
	}
	if string(got1) != "hello" {
		t.Fatalf("stream 1 = %q, want %q", got1, "hello")
	}
}

// TestWriterCommitPreservesUntouchedNilStream guards against Commit
// silently turning a pre-existing nil stream into a zero-length one: a
// nil stream and a zero-length stream are distinct states, and a commit
// that never touches stream 1 must leave it exactly as nil as it found it.
func TestWriterCommitPreservesUntouchedNilStream(t *testing.T) {
	mem := &memWriterAt{}
	w := NewWriter(mem, BlockSize4096)

	w.AddStream([]byte("stream zero"))  // stream 0
	w.DeleteStream(1)                   // stream 1: nil
	w.AddStream([]byte("stream two"))   // stream 2

	if err := w.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	f, err := NewFile(mem, int64(len(mem.buf)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	sb := f.SuperBlock()
	dir, err := f.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dir.StreamSizes[1] != NilStreamSize {
		t.Fatalf("stream 1 size after first commit = %#x, want NilStreamSize", dir.StreamSizes[1])
	}

	// Reopen a writer from this state and commit again without touching
	// stream 1 at all.
	w2, err := OpenWriter(mem, mem, sb, dir)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	w2.SetStream(2, []byte("stream two, revised"))

	if err := w2.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	f.Close()

	f2, err := NewFile(mem, int64(len(mem.buf)))
	if err != nil {
		t.Fatalf("NewFile (reopen): %v", err)
	}
	defer f2.Close()

	dir2, err := f2.Directory()
	if err != nil {
		t.Fatalf("Directory (reopen): %v", err)
	}
	if dir2.StreamSizes[1] != NilStreamSize {
		t.Fatalf("stream 1 size after untouched second commit = %#x, want NilStreamSize", dir2.StreamSizes[1])
	}
	if exists, _ := f2.StreamExists(1); exists {
		t.Fatalf("stream 1 reports as existing after being left untouched across two commits")
	}

	got0, err := f2.ReadStream(0)
	if err != nil {
		t.Fatalf("ReadStream(0): %v", err)
	}
	if string(got0) != "stream zero" {
		t.Fatalf("stream 0 = %q, want %q", got0, "stream zero")
	}

	got2, err := f2.ReadStream(2)
	if err != nil {
		t.Fatalf("ReadStream(2): %v", err)
	}
	if string(got2) != "stream two, revised" {
		t.Fatalf("stream 2 = %q, want %q", got2, "stream two, revised")
	}
}
