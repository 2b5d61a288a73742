package tpi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
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

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

func TestParseFieldListRecordMemberAndBaseClass(t *testing.T) {
	var data []byte

	// LF_BCLASS: access=public, type=0x1002, offset=0 (encoded as a
	// literal numeric leaf).
	data = append(data, u16le(uint16(LF_BCLASS))...)
	data = append(data, u16le(uint16(MemberAccessPublic))...)
	data = append(data, u32le(0x1002)...)
	data = append(data, u16le(0)...) // numeric literal 0

	// one LF_PAD1 byte; the parser skips pad bytes between sub-records
	data = append(data, byte(LF_PAD1))

	// LF_MEMBER: access=private, type=0x0074 (int32), offset=4, name="m_x"
	data = append(data, u16le(uint16(LF_MEMBER))...)
	data = append(data, u16le(uint16(MemberAccessPrivate))...)
	data = append(data, u32le(0x0074)...)
	data = append(data, u16le(4)...)
	data = append(data, cstr("m_x")...)

	recs, err := ParseFieldListRecord(data)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NotNil(t, recs[0].BaseClass)
	require.Equal(t, MemberAccessPublic, recs[0].BaseClass.Access)
	require.Equal(t, TypeIndex(0x1002), recs[0].BaseClass.Type)
	require.Equal(t, uint64(0), recs[0].BaseClass.Offset)

	require.NotNil(t, recs[1].Member)
	require.Equal(t, MemberAccessPrivate, recs[1].Member.Access)
	require.Equal(t, TypeIndex(0x0074), recs[1].Member.Type)
	require.Equal(t, uint64(4), recs[1].Member.Offset)
	require.Equal(t, "m_x", recs[1].Member.Name)
}

func TestParseFieldListRecordOneMethodIntroVirtual(t *testing.T) {
	var data []byte

	props := uint16(MemberAccessPublic) | uint16(MethodKindIntroVirtual)<<2
	data = append(data, u16le(uint16(LF_ONEMETHOD))...)
	data = append(data, u16le(props)...)
	data = append(data, u32le(0x1010)...) // method type
	data = append(data, u32le(8)...)      // vbaseoff
	data = append(data, cstr("Frob")...)

	recs, err := ParseFieldListRecord(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	m := recs[0].OneMethod
	require.NotNil(t, m)
	require.Equal(t, TypeIndex(0x1010), m.Type)
	require.Equal(t, uint32(8), m.VBaseOff)
	require.Equal(t, "Frob", m.Name)
	require.True(t, m.Properties.IsIntro())
}

func TestParseFieldListRecordOneMethodVanillaHasNoVBaseOff(t *testing.T) {
	var data []byte

	props := uint16(MemberAccessPublic) // MethodKindVanilla == 0
	data = append(data, u16le(uint16(LF_ONEMETHOD))...)
	data = append(data, u16le(props)...)
	data = append(data, u32le(0x1020)...)
	data = append(data, cstr("Plain")...)

	recs, err := ParseFieldListRecord(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, uint32(0), recs[0].OneMethod.VBaseOff)
	require.Equal(t, "Plain", recs[0].OneMethod.Name)
}

func TestParseFieldListRecordUnknownKindCapturesRaw(t *testing.T) {
	var data []byte
	unknownKind := TypeRecordKind(0x1999)
	data = append(data, u16le(uint16(unknownKind))...)
	data = append(data, []byte{0xAA, 0xBB, 0xCC}...)

	recs, err := ParseFieldListRecord(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, unknownKind, recs[0].Kind)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, recs[0].Unknown)
}

func TestParseMethodListRecord(t *testing.T) {
	var data []byte

	props1 := uint16(MemberAccessPublic)
	data = append(data, u16le(props1)...)
	data = append(data, u16le(0)...) // pad
	data = append(data, u32le(0x2000)...)

	props2 := uint16(MemberAccessPublic) | uint16(MethodKindPureIntro)<<2
	data = append(data, u16le(props2)...)
	data = append(data, u16le(0)...)
	data = append(data, u32le(0x2001)...)
	data = append(data, u32le(16)...) // vbaseoff

	entries, err := ParseMethodListRecord(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, TypeIndex(0x2000), entries[0].Type)
	require.Equal(t, uint32(0), entries[0].VBaseOff)
	require.Equal(t, TypeIndex(0x2001), entries[1].Type)
	require.Equal(t, uint32(16), entries[1].VBaseOff)
}
