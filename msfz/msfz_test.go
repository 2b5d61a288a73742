package msfz

import (
	"bytes"
	"testing"
)

type memFile struct {
	buf []byte
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func TestWriterReaderRoundTripZstd(t *testing.T) {
	mem := &memFile{}
	w := NewWriter(mem, CompressionZstd)
	w.ChunkTarget = 64

	payload := bytes.Repeat([]byte("the quick brown fox "), 50)
	idx, err := w.WriteStream(payload)
	if err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected stream index 0, got %d", idx)
	}

	small, err := w.WriteStream([]byte("tiny"))
	if err != nil {
		t.Fatalf("WriteStream(tiny): %v", err)
	}

	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := Open(mem, int64(len(mem.buf)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := f.ReadStream(0)
	if err != nil {
		t.Fatalf("ReadStream(0): %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stream 0 mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	got2, err := f.ReadStream(small)
	if err != nil {
		t.Fatalf("ReadStream(small): %v", err)
	}
	if string(got2) != "tiny" {
		t.Fatalf("stream %d = %q, want %q", small, got2, "tiny")
	}
}

func TestWriterReaderRoundTripUncompressed(t *testing.T) {
	mem := &memFile{}
	w := NewWriter(mem, CompressionNone)

	payload := []byte("no compression here")
	if _, err := w.WriteStream(payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := Open(mem, int64(len(mem.buf)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := f.ReadStream(0)
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("mismatch: got %q want %q", got, payload)
	}
}
