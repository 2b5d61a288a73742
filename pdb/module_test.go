package pdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/pdb-rs-sub001/internal/dbi"
	"github.com/microsoft/pdb-rs-sub001/internal/diag"
	"github.com/microsoft/pdb-rs-sub001/internal/symbols"
)

func newTestModule(sink *diag.Sink) *Module {
	return &Module{
		pdb:  &File{diag: sink},
		info: &dbi.ModuleInfo{ModuleName: "foo.obj"},
	}
}

func TestConvertSymbolReportsUnrecognizedKindToSink(t *testing.T) {
	sink := diag.NewSink(0)
	m := newTestModule(sink)

	sym := m.convertSymbol(&symbols.SymbolRecord{Kind: symbols.S_PUB32})
	require.Nil(t, sym)

	require.Equal(t, 1, sink.Len())
	entries := sink.Entries()
	require.Equal(t, "foo.obj", entries[0].Module)
	require.Contains(t, entries[0].Message, "unrecognized symbol kind")
}

func TestConvertSymbolReportsMalformedRecordToSink(t *testing.T) {
	sink := diag.NewSink(0)
	m := newTestModule(sink)

	// S_GPROC32 with no data at all: ParseProcSym fails to decode it.
	sym := m.convertSymbol(&symbols.SymbolRecord{Kind: symbols.S_GPROC32, Data: nil})
	require.Nil(t, sym)

	require.Equal(t, 1, sink.Len())
	require.Contains(t, sink.Entries()[0].Message, "dropped symbol kind")
}

func TestConvertSymbolWithoutSinkDropsSilently(t *testing.T) {
	m := newTestModule(nil)

	sym := m.convertSymbol(&symbols.SymbolRecord{Kind: symbols.S_PUB32})
	require.Nil(t, sym)
}
