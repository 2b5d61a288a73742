package tpi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/pdb-rs-sub001/internal/diag"
)

// buildTPIHeader constructs a minimal, valid TPI/IPI header followed by the
// given raw record bytes, suitable for ParseStream.
func buildTPIHeader(typeCount uint32, recordBytes []byte) []byte {
	var h []byte
	h = append(h, u32le(TPIVersionV80)...)
	h = append(h, u32le(TPIHeaderSize)...)
	h = append(h, u32le(uint32(FirstUserTypeIndex))...)
	h = append(h, u32le(uint32(FirstUserTypeIndex)+typeCount)...)
	h = append(h, u32le(uint32(len(recordBytes)))...)
	h = append(h, u16le(0)...)      // HashStreamIndex
	h = append(h, u16le(0xFFFF)...) // HashAuxStreamIndex
	h = append(h, u32le(4)...)      // HashKeySize
	h = append(h, u32le(0)...)      // NumHashBuckets
	h = append(h, u32le(0)...)      // HashValueBufferOffset
	h = append(h, u32le(0)...)      // HashValueBufferLength
	h = append(h, u32le(0)...)      // IndexOffsetBufferOffset
	h = append(h, u32le(0)...)      // IndexOffsetBufferLength
	h = append(h, u32le(0)...)      // HashAdjBufferOffset
	h = append(h, u32le(0)...)      // HashAdjBufferLength
	return append(h, recordBytes...)
}

// record builds one length-prefixed type record: a u16 length (covering kind
// + data), the u16 kind, then data.
func record(kind TypeRecordKind, data []byte) []byte {
	var out []byte
	out = append(out, u16le(uint16(2+len(data)))...)
	out = append(out, u16le(uint16(kind))...)
	out = append(out, data...)
	return out
}

func TestReferenceGraphRankChain(t *testing.T) {
	begin := FirstUserTypeIndex

	// 0x1000: LF_FIELDLIST with one LF_MEMBER of a primitive type.
	var fieldListData []byte
	fieldListData = append(fieldListData, u16le(uint16(LF_MEMBER))...)
	fieldListData = append(fieldListData, u16le(uint16(MemberAccessPublic))...)
	fieldListData = append(fieldListData, u32le(0x0074)...) // primitive int32
	fieldListData = append(fieldListData, u16le(0)...)      // offset literal
	fieldListData = append(fieldListData, cstr("m")...)
	r0 := record(LF_FIELDLIST, fieldListData)

	// 0x1001: LF_CLASS referencing the field list at 0x1000.
	var classData []byte
	classData = append(classData, u16le(0)...)                      // member count
	classData = append(classData, u16le(0)...)                      // properties
	classData = append(classData, u32le(uint32(begin))...)          // field list = 0x1000
	classData = append(classData, u32le(0)...)                      // derived from
	classData = append(classData, u32le(0)...)                      // vshape
	classData = append(classData, u16le(0)...)                      // size literal
	classData = append(classData, cstr("Widget")...)
	r1 := record(LF_CLASS, classData)

	// 0x1002: LF_POINTER referencing the class at 0x1001.
	var ptrData []byte
	ptrData = append(ptrData, u32le(uint32(begin)+1)...) // referent = 0x1001
	ptrData = append(ptrData, u32le(0x0c)...)             // near64, mode=pointer
	r2 := record(LF_POINTER, ptrData)

	raw := append(append(r0, r1...), r2...)
	data := buildTPIHeader(3, raw)

	s, err := ParseStream(data)
	require.NoError(t, err)

	g, err := s.References()
	require.NoError(t, err)

	require.Equal(t, uint32(0), g.Rank(begin))     // field list: only a primitive ref
	require.Equal(t, uint32(1), g.Rank(begin+1))   // class: depends on field list
	require.Equal(t, uint32(2), g.Rank(begin+2))   // pointer: depends on class

	refs := g.References(begin + 2)
	require.Contains(t, refs, begin+1)
}

// A field list whose sub-record data is truncated mid-decode must not abort
// rank computation for the rest of the stream, and — when a sink is
// attached — must be reported rather than silently dropped.
func TestReferenceGraphReportsMalformedFieldListToSink(t *testing.T) {
	begin := FirstUserTypeIndex

	// LF_MEMBER's kind with no trailing access/type/offset/name data: fails
	// to decode past the sub-record kind.
	truncated := u16le(uint16(LF_MEMBER))
	r0 := record(LF_FIELDLIST, truncated)

	data := buildTPIHeader(1, r0)

	sink := diag.NewSink(0)
	s, err := ParseStream(data, WithDiagSink(sink, "TPI"))
	require.NoError(t, err)

	g, err := s.References()
	require.NoError(t, err)
	require.Empty(t, g.References(begin)) // malformed sub-records contribute no edges

	require.Equal(t, 1, sink.Len())
	entries := sink.Entries()
	require.Equal(t, "TPI", entries[0].Stream)
	require.Contains(t, entries[0].Message, "field list")
}
