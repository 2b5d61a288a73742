package dbi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/pdb-rs-sub001/internal/diag"
)

func u16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildDBIHeader lays out the fixed 64-byte DBI header with the given
// substream sizes; every other field is zeroed.
func buildDBIHeader(sizes struct {
	modInfo, sectionContrib, sectionMap, sourceInfo, typeServerMap, dbgHeader, ec uint32
}) []byte {
	var h []byte
	h = append(h, u32le(0xFFFFFFFF)...) // VersionSignature = -1
	h = append(h, u32le(DBIVersionV70)...)
	h = append(h, u32le(1)...)      // Age
	h = append(h, u16le(0)...)      // GlobalStreamIndex
	h = append(h, u16le(0)...)      // BuildNumber
	h = append(h, u16le(0)...)      // PublicStreamIndex
	h = append(h, u16le(0)...)      // PDBDllVersion
	h = append(h, u16le(0)...)      // SymRecordStreamIndex
	h = append(h, u16le(0)...)      // PDBDllRbld
	h = append(h, u32le(sizes.modInfo)...)
	h = append(h, u32le(sizes.sectionContrib)...)
	h = append(h, u32le(sizes.sectionMap)...)
	h = append(h, u32le(sizes.sourceInfo)...)
	h = append(h, u32le(sizes.typeServerMap)...)
	h = append(h, u32le(0)...) // MFCTypeServerIndex
	h = append(h, u32le(sizes.dbgHeader)...)
	h = append(h, u32le(sizes.ec)...)
	h = append(h, u16le(0)...) // Flags
	h = append(h, u16le(MachineAMD64)...)
	h = append(h, u32le(0)...) // Padding
	return h
}

// buildSourceInfo lays out the Source Info substream for a single module
// with the given file-name offsets and a names buffer, exactly as
// parseSourceInfo expects to read it.
func buildSourceInfo(fileOffsets []uint32, namesBuffer []byte) []byte {
	var b []byte
	b = append(b, u16le(1)...)                      // NumModules
	b = append(b, u16le(uint16(len(fileOffsets)))...) // NumSourceFiles (unreliable, ignored)
	b = append(b, u16le(0)...)                      // ModIndices[0]
	b = append(b, u16le(uint16(len(fileOffsets)))...) // ModFileCounts[0]
	for _, off := range fileOffsets {
		b = append(b, u32le(off)...)
	}
	b = append(b, namesBuffer...)
	return b
}

// A source-file name offset that runs past the end of the names buffer must
// not abort the rest of Source Info parsing, and — when a sink is
// attached — must be reported rather than silently left blank.
func TestParseSourceInfoReportsOutOfRangeOffsetToSink(t *testing.T) {
	namesBuffer := []byte("a.c\x00")
	sourceInfo := buildSourceInfo([]uint32{0, 100}, namesBuffer) // offset 100 is out of range

	header := buildDBIHeader(struct {
		modInfo, sectionContrib, sectionMap, sourceInfo, typeServerMap, dbgHeader, ec uint32
	}{sourceInfo: uint32(len(sourceInfo))})

	data := append(header, sourceInfo...)

	sink := diag.NewSink(0)
	s, err := ParseStream(data, WithDiagSink(sink))
	require.NoError(t, err)

	require.Len(t, s.SourceFiles, 1)
	require.Equal(t, "a.c", s.SourceFiles[0].Names[0])
	require.Equal(t, "", s.SourceFiles[0].Names[1]) // out-of-range offset left blank, as before

	require.Equal(t, 1, sink.Len())
	require.Contains(t, sink.Entries()[0].Message, "out of range")

	// Without a sink, behavior is unchanged and nothing is recorded.
	s2, err := ParseStream(data)
	require.NoError(t, err)
	require.Equal(t, "", s2.SourceFiles[0].Names[1])
}
