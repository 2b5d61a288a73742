package tpi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFuncIDRecord(t *testing.T) {
	var data []byte
	data = append(data, u32le(0)...)      // no parent scope
	data = append(data, u32le(0x1050)...) // function type
	data = append(data, cstr("main")...)

	rec, err := ParseFuncIDRecord(data)
	require.NoError(t, err)
	require.Equal(t, TypeIndex(0x1050), rec.FunctionType)
	require.Equal(t, "main", rec.Name)
}

func TestParseSubstrListAndStringID(t *testing.T) {
	var list []byte
	list = append(list, u32le(2)...)
	list = append(list, u32le(0x3001)...)
	list = append(list, u32le(0x3002)...)

	sub, err := ParseSubstrListRecord(list)
	require.NoError(t, err)
	require.Equal(t, []TypeIndex{0x3001, 0x3002}, sub.Strings)

	var str []byte
	str = append(str, u32le(0)...)
	str = append(str, cstr("-DFOO=1")...)

	s, err := ParseStringIDRecord(str)
	require.NoError(t, err)
	require.Equal(t, "-DFOO=1", s.Str)
}

func TestParseBuildInfoRecord(t *testing.T) {
	var data []byte
	data = append(data, u16le(5)...)
	for i := uint32(0x4000); i < 0x4005; i++ {
		data = append(data, u32le(i)...)
	}

	rec, err := ParseBuildInfoRecord(data)
	require.NoError(t, err)
	require.Len(t, rec.Args, 5)
	require.Equal(t, TypeIndex(0x4002), rec.Arg(BuildInfoSourceFile))
	require.Equal(t, TypeIndex(0x4004), rec.Arg(BuildInfoCommandLine))
	require.Equal(t, TypeIndex(0), rec.Arg(BuildInfoArg(99)))
}

func TestParseUDTSrcLineRecords(t *testing.T) {
	var data []byte
	data = append(data, u32le(0x1234)...) // UDT
	data = append(data, u32le(0x2000)...) // source file string id
	data = append(data, u32le(42)...)     // line

	rec, err := ParseUDTSrcLineRecord(data)
	require.NoError(t, err)
	require.Equal(t, TypeIndex(0x1234), rec.UDT)
	require.Equal(t, uint32(42), rec.LineNumber)

	data = append(data, u16le(3)...) // module
	modRec, err := ParseUDTModSrcLineRecord(data)
	require.NoError(t, err)
	require.Equal(t, TypeIndex(0x1234), modRec.UDT)
	require.Equal(t, uint16(3), modRec.Module)
}
