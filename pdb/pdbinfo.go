package pdb

import (
	"encoding/binary"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// FeatureCode is a u32 flag recorded in the PDB Info stream's feature list.
// A feature being present means the writer that produced this PDB enabled
// that optional behavior.
type FeatureCode uint32

const (
	// FeatureMiniPDB marks a PDB produced with /DEBUG:FASTLINK: most streams
	// are omitted and symbol/type data instead points back into the original
	// object files.
	FeatureMiniPDB FeatureCode = 0x494E494D
	// FeatureNoTypeMerge marks a PDB whose TPI stream was not deduplicated
	// against a type server.
	FeatureNoTypeMerge FeatureCode = 0x4D544F4E
	// FeatureMinimalDebugInfo is an older synonym some toolchains emit
	// instead of FeatureMiniPDB.
	FeatureMinimalDebugInfo FeatureCode = 0x494E494D
)

// NamedStreamsTable maps stream names (like "/names" or "/LinkInfo") to MSF
// stream indices, as recorded in the PDB Info stream.
type NamedStreamsTable struct {
	entries map[string]uint32
}

// Get looks up a stream by name. The comparison is case-sensitive, matching
// how the table is populated.
func (t *NamedStreamsTable) Get(name string) (uint32, bool) {
	if t == nil {
		return 0, false
	}
	idx, ok := t.entries[name]
	return idx, ok
}

// Names returns every stream name recorded in the table, in no particular
// order.
func (t *NamedStreamsTable) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for name := range t.entries {
		out = append(out, name)
	}
	return out
}

// parseNamedStreams decodes the Named Streams Table that follows the fixed
// PDB Info header (and unique ID, for modern PDBs). The on-disk shape is:
// a length-prefixed name buffer, a hash-table header (cardinality, capacity),
// a present bitmap, a deleted bitmap, then one {nameOffset, streamIndex}
// pair per present bit. A trailing niMac u32 (always 0 in practice) follows.
// Returns the table plus the reader position immediately after it, so the
// caller can continue parsing the trailing feature-code list.
func parseNamedStreams(data []byte, offset int) (*NamedStreamsTable, int, error) {
	read32 := func(off int) (uint32, error) {
		if off+4 > len(data) {
			return 0, errors.Newf("pdb: PDB info stream truncated at offset %d", off)
		}
		return binary.LittleEndian.Uint32(data[off : off+4]), nil
	}

	namesSize, err := read32(offset)
	if err != nil {
		return nil, 0, err
	}
	offset += 4

	if offset+int(namesSize) > len(data) {
		return nil, 0, errors.Newf("pdb: named streams buffer truncated")
	}
	namesBuf := data[offset : offset+int(namesSize)]
	offset += int(namesSize)

	nameCount, err := read32(offset)
	if err != nil {
		return nil, 0, err
	}
	offset += 4

	_, err = read32(offset) // hash table capacity, unused on read
	if err != nil {
		return nil, 0, err
	}
	offset += 4

	presentWords, err := read32(offset)
	if err != nil {
		return nil, 0, err
	}
	offset += 4

	presentLen := int(presentWords) * 4
	if offset+presentLen > len(data) {
		return nil, 0, errors.Newf("pdb: named streams present bitmap truncated")
	}
	presentMask := data[offset : offset+presentLen]
	offset += presentLen

	var presentCount uint32
	for _, b := range presentMask {
		presentCount += uint32(bits.OnesCount8(b))
	}
	if presentCount != nameCount {
		return nil, 0, errors.Newf(
			"pdb: named streams table inconsistent: name count %d, present bitmap count %d",
			nameCount, presentCount)
	}

	deletedWords, err := read32(offset)
	if err != nil {
		return nil, 0, err
	}
	offset += 4

	deletedLen := int(deletedWords) * 4
	if offset+deletedLen > len(data) {
		return nil, 0, errors.Newf("pdb: named streams deleted bitmap truncated")
	}
	offset += deletedLen

	entries := make(map[string]uint32, nameCount)
	for i := uint32(0); i < nameCount; i++ {
		key, err := read32(offset)
		if err != nil {
			return nil, 0, err
		}
		offset += 4
		streamIdx, err := read32(offset)
		if err != nil {
			return nil, 0, err
		}
		offset += 4

		name, err := readCStringAtOffset(namesBuf, int(key))
		if err != nil {
			continue
		}
		if _, dup := entries[name]; dup {
			continue
		}
		entries[name] = streamIdx
	}

	// Trailing niMac: the number of NameIndex-keyed entries, always 0 for
	// every PDB this library has seen. Not load-bearing, but consumed so the
	// offset lands cleanly on the start of the feature-code list.
	if _, err := read32(offset); err == nil {
		offset += 4
	}

	return &NamedStreamsTable{entries: entries}, offset, nil
}

func readCStringAtOffset(buf []byte, off int) (string, error) {
	if off < 0 || off >= len(buf) {
		return "", errors.Newf("pdb: name offset %d out of range", off)
	}
	end := off
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end]), nil
}

// parseFeatureCodes reads the trailing feature-code list: every remaining
// u32 in the stream is one enabled feature.
func parseFeatureCodes(data []byte) []FeatureCode {
	var features []FeatureCode
	for off := 0; off+4 <= len(data); off += 4 {
		features = append(features, FeatureCode(binary.LittleEndian.Uint32(data[off:off+4])))
	}
	return features
}

// HasFeature reports whether code is present in this PDB's feature list.
func (info *PDBInfo) HasFeature(code FeatureCode) bool {
	for _, f := range info.Features {
		if f == code {
			return true
		}
	}
	return false
}

// NamedStream looks up a named stream's MSF index by name (e.g. "/names").
func (info *PDBInfo) NamedStream(name string) (uint32, bool) {
	return info.NamedStreams.Get(name)
}
