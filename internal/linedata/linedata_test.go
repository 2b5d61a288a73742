package linedata

import (
	"encoding/binary"
	"testing"
)

// buildSubsection packs a {kind, size, payload, padding} record the way a
// module stream's C13 blob does.
func buildSubsection(kind SubsectionKind, payload []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(kind))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	out := append([]byte{}, hdr[:]...)
	out = append(out, payload...)
	if pad := (4 - (len(payload) & 3)) & 3; pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	return out
}

func TestIteratorWalksSubsectionsAndSkipsPadding(t *testing.T) {
	// One 3-byte payload (needs 1 byte of padding), one 4-byte payload
	// (needs none), to exercise both branches of the alignment formula.
	a := buildSubsection(SubsectionFileChecksums, []byte{1, 2, 3})
	b := buildSubsection(SubsectionLines, []byte{1, 2, 3, 4})

	data := append(append([]byte{}, a...), b...)
	it := NewIterator(data)

	sub, ok := it.Next()
	if !ok {
		t.Fatalf("expected first subsection")
	}
	if sub.Kind != SubsectionFileChecksums || len(sub.Data) != 3 {
		t.Fatalf("first subsection = %+v", sub)
	}

	sub, ok = it.Next()
	if !ok {
		t.Fatalf("expected second subsection")
	}
	if sub.Kind != SubsectionLines || len(sub.Data) != 4 {
		t.Fatalf("second subsection = %+v", sub)
	}

	if _, ok := it.Next(); ok {
		t.Fatalf("expected iteration to end")
	}
}

func TestIteratorDegradesOnTruncatedHeader(t *testing.T) {
	it := NewIterator([]byte{1, 2, 3})
	if _, ok := it.Next(); ok {
		t.Fatalf("expected no subsection from a truncated header")
	}
}

func TestIteratorDegradesOnTruncatedPayload(t *testing.T) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(SubsectionLines))
	binary.LittleEndian.PutUint32(hdr[4:8], 100) // claims more than is present
	it := NewIterator(hdr[:])
	if _, ok := it.Next(); ok {
		t.Fatalf("expected no subsection when payload runs past end of data")
	}
}

func TestIteratorEmptyInput(t *testing.T) {
	it := NewIterator(nil)
	if _, ok := it.Next(); ok {
		t.Fatalf("expected no subsection from empty input")
	}
}

func TestParseFileChecksums(t *testing.T) {
	// Two records: name offset 0 with no checksum, name offset 4 with a
	// 4-byte checksum, so the second record's key exercises the non-zero
	// alignment path.
	var rec1 [8]byte
	binary.LittleEndian.PutUint32(rec1[0:4], 0)
	rec1[4] = ChecksumKindNone
	rec1[5] = 0

	rec2Name := [4]byte{}
	binary.LittleEndian.PutUint32(rec2Name[:], 4)
	rec2 := append([]byte{}, rec2Name[:]...)
	rec2 = append(rec2, ChecksumKindMD5, 4)
	rec2 = append(rec2, []byte{0xAA, 0xBB, 0xCC, 0xDD}...)

	data := append(append([]byte{}, rec1[:]...), rec2...)

	checksums, err := ParseFileChecksums(data)
	if err != nil {
		t.Fatalf("ParseFileChecksums: %v", err)
	}
	if len(checksums) != 2 {
		t.Fatalf("expected 2 checksum entries, got %d", len(checksums))
	}

	first, ok := checksums[0]
	if !ok {
		t.Fatalf("missing entry at offset 0")
	}
	if first.Name != 0 || first.Kind != ChecksumKindNone || len(first.Bytes) != 0 {
		t.Fatalf("entry at offset 0 = %+v", first)
	}

	secondOffset := uint32(len(rec1))
	second, ok := checksums[secondOffset]
	if !ok {
		t.Fatalf("missing entry at offset %d", secondOffset)
	}
	if second.Name != 4 || second.Kind != ChecksumKindMD5 {
		t.Fatalf("entry at offset %d = %+v", secondOffset, second)
	}
	if len(second.Bytes) != 4 || second.Bytes[0] != 0xAA {
		t.Fatalf("checksum bytes = %v", second.Bytes)
	}
}

func buildLinesSubsection(header LinesHeader, blocks []LineBlock) []byte {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], header.Offset)
	binary.LittleEndian.PutUint16(hdr[4:6], header.Segment)
	binary.LittleEndian.PutUint16(hdr[6:8], header.Flags)
	binary.LittleEndian.PutUint32(hdr[8:12], header.Size)

	out := append([]byte{}, hdr[:]...)
	for _, blk := range blocks {
		blockSize := 12 + len(blk.Lines)*8
		var bhdr [12]byte
		binary.LittleEndian.PutUint32(bhdr[0:4], blk.FileIndex)
		binary.LittleEndian.PutUint32(bhdr[4:8], uint32(len(blk.Lines)))
		binary.LittleEndian.PutUint32(bhdr[8:12], uint32(blockSize))
		out = append(out, bhdr[:]...)

		for _, ln := range blk.Lines {
			var rec [8]byte
			binary.LittleEndian.PutUint32(rec[0:4], ln.Offset)
			packed := ln.LineStart&0x00FFFFFF | (ln.DeltaLineEnd&0x7F)<<24
			if ln.IsStatement {
				packed |= 0x80000000
			}
			binary.LittleEndian.PutUint32(rec[4:8], packed)
			out = append(out, rec[:]...)
		}
	}
	return out
}

func TestParseLinesSubsection(t *testing.T) {
	header := LinesHeader{Offset: 0x1000, Segment: 1, Flags: 0, Size: 0x40}
	blocks := []LineBlock{
		{
			FileIndex: 0,
			Lines: []LineEntry{
				{Offset: 0, LineStart: 10, DeltaLineEnd: 0, IsStatement: true},
				{Offset: 8, LineStart: 12, DeltaLineEnd: 2, IsStatement: false},
			},
		},
	}

	data := buildLinesSubsection(header, blocks)
	got, err := ParseLinesSubsection(data)
	if err != nil {
		t.Fatalf("ParseLinesSubsection: %v", err)
	}

	if got.Header != header {
		t.Fatalf("header = %+v, want %+v", got.Header, header)
	}
	if got.Header.HasColumns() {
		t.Fatalf("expected HasColumns() false when flag bit 0 is unset")
	}
	if len(got.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(got.Blocks))
	}

	block := got.Blocks[0]
	if block.FileIndex != 0 || len(block.Lines) != 2 {
		t.Fatalf("block = %+v", block)
	}
	if block.Lines[0].LineStart != 10 || !block.Lines[0].IsStatement {
		t.Fatalf("line[0] = %+v", block.Lines[0])
	}
	if block.Lines[1].LineStart != 12 || block.Lines[1].DeltaLineEnd != 2 || block.Lines[1].IsStatement {
		t.Fatalf("line[1] = %+v", block.Lines[1])
	}
}

func TestParseLinesSubsectionRejectsTruncatedBlock(t *testing.T) {
	header := LinesHeader{Offset: 0, Segment: 1, Flags: 0, Size: 0x10}
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], header.Offset)
	binary.LittleEndian.PutUint16(hdr[4:6], header.Segment)
	binary.LittleEndian.PutUint16(hdr[6:8], header.Flags)
	binary.LittleEndian.PutUint32(hdr[8:12], header.Size)

	// Block header claims 5 lines but declares a block size too small to
	// hold them.
	var bhdr [12]byte
	binary.LittleEndian.PutUint32(bhdr[0:4], 0)
	binary.LittleEndian.PutUint32(bhdr[4:8], 5)
	binary.LittleEndian.PutUint32(bhdr[8:12], 12)

	data := append(append([]byte{}, hdr[:]...), bhdr[:]...)
	if _, err := ParseLinesSubsection(data); err == nil {
		t.Fatalf("expected an error for a block whose declared size can't hold its lines")
	}
}
