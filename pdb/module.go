package pdb

import (
	"iter"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/internal/dbi"
	"github.com/microsoft/pdb-rs-sub001/internal/linedata"
	"github.com/microsoft/pdb-rs-sub001/internal/stream"
	"github.com/microsoft/pdb-rs-sub001/internal/symbols"
)

// Module represents a compilation unit (object file) in the PDB.
type Module struct {
	pdb   *File
	index int
	info  *dbi.ModuleInfo

	// Lazy-loaded symbols
	symbols     []Symbol
	symbolsOnce sync.Once
	symbolsErr  error

	// Lazy-loaded C13 line data
	lineData     *ModuleLineData
	lineDataOnce sync.Once
	lineDataErr  error

	// rawData is the module stream's full contents (signature + symbols +
	// obsolete C11 data + C13 line data), loaded once and sliced by both
	// parseSymbols, parseLineData and GlobalRefs.
	rawData    []byte
	rawOnce    sync.Once
	rawErr     error
}

// Index returns the module index.
func (m *Module) Index() int {
	return m.index
}

// Name returns the module name (typically the object file path).
func (m *Module) Name() string {
	return m.info.ModuleName
}

// ObjectFileName returns the original object file name.
func (m *Module) ObjectFileName() string {
	return m.info.ObjFileName
}

// Section returns the section index for this module's contribution.
func (m *Module) Section() uint16 {
	return m.info.Section.Section
}

// Offset returns the offset within the section.
func (m *Module) Offset() int32 {
	return m.info.Section.Offset
}

// Size returns the size of this module's contribution.
func (m *Module) Size() int32 {
	return m.info.Section.Size
}

// SourceFileCount returns the number of source files.
func (m *Module) SourceFileCount() uint16 {
	return m.info.SourceFileCount
}

// Symbols returns an iterator over symbols in this module.
func (m *Module) Symbols() iter.Seq[Symbol] {
	return func(yield func(Symbol) bool) {
		m.loadSymbols()

		if m.symbolsErr != nil {
			return
		}

		for _, sym := range m.symbols {
			if !yield(sym) {
				return
			}
		}
	}
}

func (m *Module) loadSymbols() {
	m.symbolsOnce.Do(func() {
		m.symbols, m.symbolsErr = m.parseSymbols()
	})
}

func (m *Module) loadRaw() ([]byte, error) {
	m.rawOnce.Do(func() {
		m.rawData, m.rawErr = m.pdb.readModuleSymbols(m.info.ModuleSymStreamIndex)
	})
	return m.rawData, m.rawErr
}

func (m *Module) parseSymbols() ([]Symbol, error) {
	// Get module symbol stream data
	data, err := m.loadRaw()
	if err != nil {
		return nil, err
	}
	if data == nil || len(data) == 0 {
		return nil, nil
	}

	// The module stream starts with a signature, then symbol records
	if len(data) < 4 {
		return nil, nil
	}

	// Skip signature (4 bytes)
	symData := data[4:]
	if uint32(len(symData)) > m.info.SymByteSize-4 {
		symData = symData[:m.info.SymByteSize-4]
	}

	// Parse symbol records
	iter := symbols.NewSymbolIterator(symData)
	var result []Symbol

	for {
		record, err := iter.Next()
		if err != nil {
			if sink := m.pdb.diag; sink != nil {
				sink.WarnModule("module symbols", m.Name(), 0, "symbol iteration stopped early: %s", err)
			}
			break
		}
		if record == nil {
			break
		}

		sym := m.convertSymbol(record)
		if sym != nil {
			result = append(result, sym)
		}
	}

	return result, nil
}

// warnSymbolDropped records, when a diagnostics sink is attached, that a
// symbol record was dropped from this module's symbol list: err is the
// decode failure for a recognized-but-malformed record kind, or nil for a
// record kind convertSymbol doesn't model at all.
func (m *Module) warnSymbolDropped(kind symbols.SymbolRecordKind, err error) {
	sink := m.pdb.diag
	if sink == nil {
		return
	}
	if err != nil {
		sink.WarnModule("module symbols", m.Name(), 0, "dropped symbol kind %#x: %s", kind, err)
	} else {
		sink.WarnModule("module symbols", m.Name(), 0, "dropped unrecognized symbol kind %#x", kind)
	}
}

func (m *Module) convertSymbol(record *symbols.SymbolRecord) Symbol {
	switch record.Kind {
	case symbols.S_GPROC32, symbols.S_LPROC32, symbols.S_GPROC32_ID, symbols.S_LPROC32_ID:
		proc, err := symbols.ParseProcSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &FunctionSymbol{
			baseSymbol: baseSymbol{name: proc.Name},
			section:    proc.Segment,
			offset:     proc.CodeOffset,
			length:     proc.CodeSize,
			typeIndex:  uint32(proc.FunctionType),
		}

	case symbols.S_GDATA32, symbols.S_LDATA32:
		data, err := symbols.ParseDataSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &DataSymbol{
			baseSymbol: baseSymbol{name: data.Name},
			section:    data.Segment,
			offset:     data.Offset,
			typeIndex:  uint32(data.Type),
		}

	case symbols.S_UDT, symbols.S_UDT_ST:
		udt, err := symbols.ParseUDTSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &UDTSymbol{
			baseSymbol: baseSymbol{name: udt.Name},
			typeIndex:  uint32(udt.Type),
		}

	case symbols.S_CONSTANT, symbols.S_CONSTANT_ST:
		c, err := symbols.ParseConstantSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &ConstantSymbol{
			baseSymbol: baseSymbol{name: c.Name},
			value:      c.Value,
			typeIndex:  uint32(c.Type),
		}

	case symbols.S_LOCAL:
		local, err := symbols.ParseLocalSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &LocalSymbol{
			baseSymbol:  baseSymbol{name: local.Name},
			typeIndex:   uint32(local.Type),
			isParameter: local.Flags.IsParameter(),
		}

	case symbols.S_LABEL32:
		label, err := symbols.ParseLabelSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &LabelSymbol{
			baseSymbol: baseSymbol{name: label.Name},
			section:    label.Segment,
			offset:     label.Offset,
		}

	case symbols.S_BLOCK32:
		block, err := symbols.ParseBlockSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &BlockSymbol{
			baseSymbol: baseSymbol{name: block.Name},
			section:    block.Segment,
			offset:     block.Offset,
			length:     block.CodeSize,
		}

	case symbols.S_THUNK32:
		thunk, err := symbols.ParseThunkSym(record.Data)
		if err != nil {
			m.warnSymbolDropped(record.Kind, err)
			return nil
		}
		return &ThunkSymbol{
			baseSymbol: baseSymbol{name: thunk.Name},
			section:    thunk.Segment,
			offset:     thunk.Offset,
			length:     uint32(thunk.Length),
		}

	default:
		m.warnSymbolDropped(record.Kind, nil)
		return nil
	}
}

// SymbolCount returns the number of symbols in this module.
func (m *Module) SymbolCount() int {
	m.loadSymbols()
	if m.symbolsErr != nil {
		return 0
	}
	return len(m.symbols)
}

// ModuleLineData is the decoded C13 line-number data for one module: the
// file checksum table (keyed by byte offset, the join key LINES blocks
// reference) and the list of line-number contributions.
type ModuleLineData struct {
	Checksums map[uint32]linedata.FileChecksum
	Lines     []linedata.LinesSubsection
}

// LineData returns this module's decoded C13 line-number data. A module
// with no line information (no debug info, or stripped) returns a
// zero-value ModuleLineData and a nil error.
func (m *Module) LineData() (*ModuleLineData, error) {
	m.lineDataOnce.Do(func() {
		m.lineData, m.lineDataErr = m.parseLineData()
	})
	return m.lineData, m.lineDataErr
}

func (m *Module) parseLineData() (*ModuleLineData, error) {
	if m.info.C13ByteSize == 0 {
		return &ModuleLineData{}, nil
	}

	data, err := m.loadRaw()
	if err != nil {
		return nil, err
	}

	// Layout: [0, SymByteSize) signature + symbol records, then C11ByteSize
	// bytes of obsolete line data (never populated by modern toolchains),
	// then C13ByteSize bytes of C13 subsections.
	c13Start := int(m.info.SymByteSize) + int(m.info.C11ByteSize)
	c13End := c13Start + int(m.info.C13ByteSize)
	if c13End > len(data) {
		return nil, errors.Newf("pdb: module %d: C13 line data extends past end of stream", m.index)
	}

	result := &ModuleLineData{Checksums: make(map[uint32]linedata.FileChecksum)}

	it := linedata.NewIterator(data[c13Start:c13End])
	for {
		sub, ok := it.Next()
		if !ok {
			break
		}

		switch sub.Kind {
		case linedata.SubsectionFileChecksums:
			checksums, err := linedata.ParseFileChecksums(sub.Data)
			if err != nil {
				return nil, errors.Wrap(err, "pdb: failed to parse file checksums")
			}
			for off, ck := range checksums {
				result.Checksums[off] = ck
			}

		case linedata.SubsectionLines:
			lines, err := linedata.ParseLinesSubsection(sub.Data)
			if err != nil {
				return nil, errors.Wrap(err, "pdb: failed to parse line data")
			}
			result.Lines = append(result.Lines, *lines)
		}
	}

	return result, nil
}

// GlobalRefs returns the GSS byte offsets this module's symbol stream
// references, stored as a trailing `{size, offsets[]}` array after the
// C13 line data.
func (m *Module) GlobalRefs() ([]uint32, error) {
	data, err := m.loadRaw()
	if err != nil {
		return nil, err
	}

	start := int(m.info.SymByteSize) + int(m.info.C11ByteSize) + int(m.info.C13ByteSize)
	if start+4 > len(data) {
		return nil, nil
	}

	r := stream.NewReader(data[start:])
	size, err := r.ReadU32()
	if err != nil {
		return nil, nil
	}
	if size%4 != 0 || int(size) > r.Remaining() {
		return nil, errors.Newf("pdb: module %d: global refs size out of range", m.index)
	}

	refs := make([]uint32, 0, size/4)
	for i := uint32(0); i < size; i += 4 {
		off, err := r.ReadU32()
		if err != nil {
			return nil, errors.Wrap(err, "pdb: failed to parse global refs")
		}
		refs = append(refs, off)
	}
	return refs, nil
}

// SourceFileName resolves a LineBlock's FileIndex to a source file path,
// using this module's checksum table and the PDB's /names string table.
func (m *Module) SourceFileName(fileIndex uint32) (string, error) {
	ld, err := m.LineData()
	if err != nil {
		return "", err
	}
	ck, ok := ld.Checksums[fileIndex]
	if !ok {
		return "", errors.Newf("pdb: module %d: no file checksum entry at offset 0x%x", m.index, fileIndex)
	}
	nt, err := m.pdb.Names()
	if err != nil {
		return "", err
	}
	return nt.String(ck.Name)
}

// LocalSymbol represents a local variable.
type LocalSymbol struct {
	baseSymbol
	typeIndex   uint32
	isParameter bool
}

func (s *LocalSymbol) Kind() SymbolKind {
	if s.isParameter {
		return SymbolKindParameter
	}
	return SymbolKindLocal
}

func (s *LocalSymbol) Section() uint16   { return 0 }
func (s *LocalSymbol) Offset() uint32    { return 0 }
func (s *LocalSymbol) TypeIndex() uint32 { return s.typeIndex }
func (s *LocalSymbol) IsParameter() bool { return s.isParameter }

// LabelSymbol represents a code label.
type LabelSymbol struct {
	baseSymbol
	section uint16
	offset  uint32
}

func (s *LabelSymbol) Kind() SymbolKind { return SymbolKindLabel }
func (s *LabelSymbol) Section() uint16  { return s.section }
func (s *LabelSymbol) Offset() uint32   { return s.offset }

// BlockSymbol represents a code block.
type BlockSymbol struct {
	baseSymbol
	section uint16
	offset  uint32
	length  uint32
}

func (s *BlockSymbol) Kind() SymbolKind { return SymbolKindBlock }
func (s *BlockSymbol) Section() uint16  { return s.section }
func (s *BlockSymbol) Offset() uint32   { return s.offset }
func (s *BlockSymbol) Length() uint32   { return s.length }

// ThunkSymbol represents a thunk.
type ThunkSymbol struct {
	baseSymbol
	section uint16
	offset  uint32
	length  uint32
}

func (s *ThunkSymbol) Kind() SymbolKind { return SymbolKindThunk }
func (s *ThunkSymbol) Section() uint16  { return s.section }
func (s *ThunkSymbol) Offset() uint32   { return s.offset }
func (s *ThunkSymbol) Length() uint32   { return s.length }
