// Package linedata decodes the C13 line-data subsections embedded in each
// module's symbol stream: file checksums and offset-to-source-line blocks.
package linedata

import (
	"github.com/cockroachdb/errors"

	"github.com/microsoft/pdb-rs-sub001/internal/names"
	"github.com/microsoft/pdb-rs-sub001/internal/stream"
)

// SubsectionKind identifies the kind of data a subsection carries.
type SubsectionKind uint32

// Subsection kinds. Only FileChecksums and Lines are semantically decoded;
// the rest are recognized and preserved but not parsed further.
const (
	SubsectionSymbols            SubsectionKind = 0xF1
	SubsectionLines              SubsectionKind = 0xF2
	SubsectionStringTable        SubsectionKind = 0xF3
	SubsectionFileChecksums      SubsectionKind = 0xF4
	SubsectionFrameData          SubsectionKind = 0xF5
	SubsectionInlineeLines       SubsectionKind = 0xF6
	SubsectionCrossScopeImports  SubsectionKind = 0xF7
	SubsectionCrossScopeExports  SubsectionKind = 0xF8
	SubsectionILLines            SubsectionKind = 0xF9
	SubsectionFuncMDTokenMap     SubsectionKind = 0xFA
	SubsectionTypeMDTokenMap     SubsectionKind = 0xFB
	SubsectionMergedAssemblyInput SubsectionKind = 0xFC
	SubsectionCoffSymbolRVA      SubsectionKind = 0xFD
)

// ErrTruncated is returned when a subsection header or payload runs past
// the end of the data.
var ErrTruncated = errors.New("linedata: truncated subsection")

// Subsection is one `{kind, size, payload}` record from the C13 line-data
// blob.
type Subsection struct {
	Kind SubsectionKind
	Data []byte
}

// Iterator walks the subsections of a module's C13 line-data blob in
// order. A malformed header or payload ends iteration early rather than
// returning an error, mirroring how the teacher's own symbol iterator
// degrades on truncated data.
type Iterator struct {
	r *stream.Reader
}

// NewIterator creates an Iterator over data (the C13 portion of a module
// stream, i.e. everything after the symbol records and obsolete C11 data).
func NewIterator(data []byte) *Iterator {
	return &Iterator{r: stream.NewReader(data)}
}

// Next returns the next subsection, or ok=false when iteration is done
// (either because the data is exhausted or because it is malformed).
func (it *Iterator) Next() (sub Subsection, ok bool) {
	if it.r.Remaining() < 8 {
		return Subsection{}, false
	}

	kind, err := it.r.ReadU32()
	if err != nil {
		return Subsection{}, false
	}
	size, err := it.r.ReadU32()
	if err != nil {
		return Subsection{}, false
	}

	data, err := it.r.ReadBytesRef(int(size))
	if err != nil {
		return Subsection{}, false
	}

	// Payloads are padded out to a 4-byte boundary; the padding itself
	// carries no information.
	if pad := (4 - (int(size) & 3)) & 3; pad > 0 {
		_ = it.r.Skip(pad)
	}

	return Subsection{Kind: SubsectionKind(kind), Data: data}, true
}

// FileChecksum describes one entry in a FILE_CHECKSUMS subsection.
type FileChecksum struct {
	// Name is the /names-table offset of the source file's path.
	Name names.Index
	// Kind identifies the checksum algorithm (e.g. MD5, SHA1, SHA256, or
	// None).
	Kind  uint8
	Bytes []byte
}

// ChecksumKind values for FileChecksum.Kind.
const (
	ChecksumKindNone   uint8 = 0
	ChecksumKindMD5    uint8 = 1
	ChecksumKindSHA1   uint8 = 2
	ChecksumKindSHA256 uint8 = 3
)

// ParseFileChecksums decodes a FILE_CHECKSUMS subsection's payload into a
// map from the byte offset of each record (within this subsection) to its
// decoded FileChecksum. LINES blocks reference checksum entries by that
// same byte offset, so the map key doubles as the join key between the two
// subsections.
func ParseFileChecksums(data []byte) (map[uint32]FileChecksum, error) {
	out := make(map[uint32]FileChecksum)
	r := stream.NewReader(data)

	for r.Remaining() >= 8 {
		recordOffset := uint32(r.Offset())

		nameIdx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		checksumKind, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		checksumLen, err := r.ReadU8()
		if err != nil {
			return nil, err
		}

		checksumBytes, err := r.ReadBytesRef(int(checksumLen))
		if err != nil {
			return nil, errors.Wrap(err, "linedata: truncated checksum bytes")
		}

		out[recordOffset] = FileChecksum{
			Name:  names.Index(nameIdx),
			Kind:  checksumKind,
			Bytes: checksumBytes,
		}

		r.Align(4)
	}

	return out, nil
}

// LinesHeader is the fixed header at the start of a LINES subsection: the
// contribution this block of line numbers covers.
type LinesHeader struct {
	Offset  uint32
	Segment uint16
	Flags   uint16
	Size    uint32
}

// HasColumns reports whether this subsection's line blocks carry column
// information in addition to line numbers (flag bit 0).
func (h LinesHeader) HasColumns() bool {
	return h.Flags&1 != 0
}

// LineEntry is one source-line mapping: the code offset (relative to the
// containing LineBlock's contribution) and the decoded line-number fields.
type LineEntry struct {
	Offset uint32
	// LineStart is the starting source line number (1-based).
	LineStart uint32
	// DeltaLineEnd is how many lines the statement/expression spans past
	// LineStart.
	DeltaLineEnd uint32
	// IsStatement is true for a statement boundary, false for an expression.
	IsStatement bool
}

// LineBlock is one `{file_index, num_lines, block_size, lines[]}` group
// within a LINES subsection, all attributed to the same source file.
type LineBlock struct {
	// FileIndex is the byte offset of this block's FileChecksum entry
	// within the sibling FILE_CHECKSUMS subsection.
	FileIndex uint32
	Lines     []LineEntry
}

// LinesSubsection is the fully decoded form of a LINES subsection.
type LinesSubsection struct {
	Header LinesHeader
	Blocks []LineBlock
}

// ParseLinesSubsection decodes a LINES subsection's payload.
func ParseLinesSubsection(data []byte) (*LinesSubsection, error) {
	r := stream.NewReader(data)

	var hdr LinesHeader
	var err error
	hdr.Offset, err = r.ReadU32()
	if err != nil {
		return nil, err
	}
	hdr.Segment, err = r.ReadU16()
	if err != nil {
		return nil, err
	}
	hdr.Flags, err = r.ReadU16()
	if err != nil {
		return nil, err
	}
	hdr.Size, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	out := &LinesSubsection{Header: hdr}

	for r.Remaining() >= 12 {
		fileIndex, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		numLines, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		blockSize, err := r.ReadU32()
		if err != nil {
			return nil, err
		}

		// blockSize counts from file_index through the end of this block's
		// line (and, if present, column) arrays.
		lineArrayBytes := int(blockSize) - 12
		if lineArrayBytes < 0 {
			return nil, ErrTruncated
		}

		lineBytes := int(numLines) * 8
		if lineBytes > lineArrayBytes {
			return nil, ErrTruncated
		}

		block := LineBlock{FileIndex: fileIndex, Lines: make([]LineEntry, 0, numLines)}
		for i := uint32(0); i < numLines; i++ {
			off, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			packed, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			block.Lines = append(block.Lines, LineEntry{
				Offset:       off,
				LineStart:    packed & 0x00FFFFFF,
				DeltaLineEnd: (packed >> 24) & 0x7F,
				IsStatement:  packed&0x80000000 != 0,
			})
		}

		// Skip any trailing column array (present when Header.HasColumns());
		// already accounted for by blockSize, which always spans the whole
		// block regardless of what's in it.
		if remaining := lineArrayBytes - lineBytes; remaining > 0 {
			if err := r.Skip(remaining); err != nil {
				return nil, err
			}
		}

		out.Blocks = append(out.Blocks, block)
	}

	return out, nil
}
