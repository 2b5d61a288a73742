package tpi

import "github.com/microsoft/pdb-rs-sub001/internal/stream"

// FuncIDRecord represents an LF_FUNC_ID record: the ID-stream counterpart of
// a free function, referenced from S_INLINESITE and friends.
type FuncIDRecord struct {
	ParentScope uint32 // NoneType (0) when the function has no enclosing scope
	FunctionType TypeIndex
	Name        string
}

// ParseFuncIDRecord parses an LF_FUNC_ID record.
func ParseFuncIDRecord(data []byte) (*FuncIDRecord, error) {
	r := stream.NewReader(data)

	parentScope, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	funcType, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, err
	}

	return &FuncIDRecord{
		ParentScope:  parentScope,
		FunctionType: TypeIndex(funcType),
		Name:         name,
	}, nil
}

// MFuncIDRecord represents an LF_MFUNC_ID record: the ID-stream counterpart
// of a member function.
type MFuncIDRecord struct {
	ParentType   TypeIndex
	FunctionType TypeIndex
	Name         string
}

// ParseMFuncIDRecord parses an LF_MFUNC_ID record.
func ParseMFuncIDRecord(data []byte) (*MFuncIDRecord, error) {
	r := stream.NewReader(data)

	parentType, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	funcType, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, err
	}

	return &MFuncIDRecord{
		ParentType:   TypeIndex(parentType),
		FunctionType: TypeIndex(funcType),
		Name:         name,
	}, nil
}

// StringIDRecord represents an LF_STRING_ID record: an interned string,
// optionally built up from an LF_SUBSTR_LIST of other string IDs.
type StringIDRecord struct {
	SubstringList TypeIndex // references an LF_SUBSTR_LIST, or 0 if none
	Str           string
}

// ParseStringIDRecord parses an LF_STRING_ID record.
func ParseStringIDRecord(data []byte) (*StringIDRecord, error) {
	r := stream.NewReader(data)

	substrList, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s, err := r.ReadCString()
	if err != nil {
		return nil, err
	}

	return &StringIDRecord{SubstringList: TypeIndex(substrList), Str: s}, nil
}

// SubstrListRecord represents an LF_SUBSTR_LIST record: an ordered list of
// LF_STRING_ID references that concatenate to form a larger string (used
// to break up long build-info command lines).
type SubstrListRecord struct {
	Strings []TypeIndex
}

// ParseSubstrListRecord parses an LF_SUBSTR_LIST record. It shares its wire
// layout with LF_ARGLIST.
func ParseSubstrListRecord(data []byte) (*SubstrListRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	strs := make([]TypeIndex, count)
	for i := uint32(0); i < count; i++ {
		ti, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		strs[i] = TypeIndex(ti)
	}

	return &SubstrListRecord{Strings: strs}, nil
}

// BuildInfoArg identifies one well-known slot of an LF_BUILDINFO record's
// argument array, in the fixed order msvc writes them.
type BuildInfoArg int

const (
	BuildInfoCurrentDirectory BuildInfoArg = iota
	BuildInfoBuildTool
	BuildInfoSourceFile
	BuildInfoProgramDatabaseFile
	BuildInfoCommandLine
)

// BuildInfoRecord represents an LF_BUILDINFO record: the compilation
// command line that produced a translation unit, as a small array of
// LF_STRING_ID references.
type BuildInfoRecord struct {
	Args []TypeIndex
}

// ParseBuildInfoRecord parses an LF_BUILDINFO record.
func ParseBuildInfoRecord(data []byte) (*BuildInfoRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	args := make([]TypeIndex, count)
	for i := uint16(0); i < count; i++ {
		ti, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		args[i] = TypeIndex(ti)
	}

	return &BuildInfoRecord{Args: args}, nil
}

// Arg returns the record's argument at the given well-known slot, or 0 if
// the record has fewer arguments than that slot requires.
func (b *BuildInfoRecord) Arg(slot BuildInfoArg) TypeIndex {
	if int(slot) >= len(b.Args) {
		return 0
	}
	return b.Args[slot]
}

// UDTSrcLineRecord represents an LF_UDT_SRC_LINE record: associates a
// user-defined type with the source file and line where it was defined.
type UDTSrcLineRecord struct {
	UDT        TypeIndex
	SourceFile uint32 // TypeIndex of an LF_STRING_ID in the IPI stream
	LineNumber uint32
}

// ParseUDTSrcLineRecord parses an LF_UDT_SRC_LINE record.
func ParseUDTSrcLineRecord(data []byte) (*UDTSrcLineRecord, error) {
	r := stream.NewReader(data)

	udt, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	sourceFile, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	line, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	return &UDTSrcLineRecord{UDT: TypeIndex(udt), SourceFile: sourceFile, LineNumber: line}, nil
}

// UDTModSrcLineRecord represents an LF_UDT_MOD_SRC_LINE record: the
// module-aware variant of LF_UDT_SRC_LINE emitted once types have been
// merged into the final PDB and associated with a contributing module.
type UDTModSrcLineRecord struct {
	UDT        TypeIndex
	SourceFile uint32
	LineNumber uint32
	Module     uint16 // 1-based index into the DBI module list
}

// ParseUDTModSrcLineRecord parses an LF_UDT_MOD_SRC_LINE record.
func ParseUDTModSrcLineRecord(data []byte) (*UDTModSrcLineRecord, error) {
	r := stream.NewReader(data)

	udt, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	sourceFile, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	line, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	module, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	return &UDTModSrcLineRecord{
		UDT:        TypeIndex(udt),
		SourceFile: sourceFile,
		LineNumber: line,
		Module:     module,
	}, nil
}
