// Package symbols provides parsing for CodeView symbol records.
package symbols

import (
	"sort"

	"github.com/microsoft/pdb-rs-sub001/internal/hash"
	"github.com/microsoft/pdb-rs-sub001/internal/stream"
)

// numHashBuckets is the fixed bucket count (IPHR_HASH) every GSI/PSI hash
// table hashes names into, independent of whatever NumBuckets-shaped field
// the on-disk header carries.
const numHashBuckets = 4096

// GSI (Global Symbol Index) provides hash-based symbol lookup.
// It parses the GSI stream format used by both global and public symbols: a
// flat array of hash records (one per indexed name, each an offset+1 into
// the symbol record stream) followed by a bitmap-compressed bucket table
// that groups those records by hash(name) % numHashBuckets.
type GSI struct {
	// hashRecords holds one entry per indexed symbol, in on-disk order,
	// which is bucket-major: every record of bucket 0, then bucket 1, ...
	hashRecords []HashRecord

	// bucketStarts[i] is the index into hashRecords of the first record
	// belonging to bucket i; bucketStarts[numHashBuckets] == len(hashRecords),
	// so bucket i's records always span [bucketStarts[i], bucketStarts[i+1]).
	bucketStarts []uint32
}

// ParseGSI parses a Global Symbol Index stream.
func ParseGSI(data []byte) (*GSI, error) {
	if len(data) < 16 {
		return nil, ErrUnexpectedEnd
	}

	r := stream.NewReader(data)

	// Read GSI header
	verSig, _ := r.ReadU32()
	verHdr, _ := r.ReadU32()
	hrSize, _ := r.ReadU32()
	bucketSize, _ := r.ReadU32()

	_ = verSig // 0xFFFFFFFF
	_ = verHdr // 0xeffe0000 + 19990810

	numRecords := hrSize / 8 // Each record is 8 bytes
	hashRecords := make([]HashRecord, numRecords)

	for i := uint32(0); i < numRecords; i++ {
		offset, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		cref, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		hashRecords[i] = HashRecord{Offset: offset, CRef: cref}
	}

	bucketData, err := r.ReadBytesRef(int(bucketSize))
	if err != nil {
		return nil, err
	}

	bucketStarts, err := decodeBucketTable(bucketData, numRecords)
	if err != nil {
		return nil, err
	}

	return &GSI{hashRecords: hashRecords, bucketStarts: bucketStarts}, nil
}

// decodeBucketTable expands the on-disk bitmap+offset-array encoding into a
// dense (numHashBuckets+1)-entry array of hash-record start indices. The
// wire format is one bit per bucket (set if non-empty), followed by one
// little-endian uint32 byte-offset per set bit giving that bucket's
// starting position (in bytes, 8 bytes per record) in the hash-record array.
func decodeBucketTable(data []byte, numRecords uint32) ([]uint32, error) {
	bitmapWords := numHashBuckets/32 + 1
	bitmapBytes := bitmapWords * 4
	if len(data) < bitmapBytes {
		return nil, ErrUnexpectedEnd
	}

	r := stream.NewReader(data)
	bitmap := make([]uint32, bitmapWords)
	for i := range bitmap {
		w, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		bitmap[i] = w
	}

	starts := make([]uint32, numHashBuckets+1)
	for i := range starts {
		starts[i] = numRecords
	}

	for bucket := 0; bucket < numHashBuckets; bucket++ {
		if bitmap[bucket/32]&(1<<uint(bucket%32)) == 0 {
			continue
		}
		byteOff, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		starts[bucket] = byteOff / 8
	}

	// Buckets with no set bit inherit the next non-empty bucket's start,
	// collapsing their own range to zero length.
	for i := numHashBuckets - 1; i >= 0; i-- {
		if starts[i] == numRecords && i < numHashBuckets-1 {
			starts[i] = starts[i+1]
		}
	}

	return starts, nil
}

// RecordOffsets returns all symbol record offsets in the GSI.
func (g *GSI) RecordOffsets() []uint32 {
	offsets := make([]uint32, 0, len(g.hashRecords))
	for _, rec := range g.hashRecords {
		if rec.Offset > 0 {
			// Offset is stored +1, so subtract 1 to get actual offset
			offsets = append(offsets, rec.Offset-1)
		}
	}
	return offsets
}

// FindByName looks up name via the hash table and returns the offsets (into
// symData, the symbol record stream) of every matching record. The hash
// only narrows the search to one bucket; candidates are confirmed by
// re-reading and comparing their actual stored name against symData, since
// distinct names can collide modulo numHashBuckets.
func (g *GSI) FindByName(name string, symData []byte) []uint32 {
	if len(g.bucketStarts) == 0 {
		return nil
	}

	bucket := hash.U32([]byte(name)) % numHashBuckets
	start, end := g.bucketStarts[bucket], g.bucketStarts[bucket+1]

	var results []uint32
	for i := start; i < end && int(i) < len(g.hashRecords); i++ {
		rec := g.hashRecords[i]
		if rec.Offset == 0 {
			continue
		}
		symOffset := rec.Offset - 1
		if int(symOffset) >= len(symData) {
			continue
		}
		symRec, _, err := ParseSymbolRecord(symData[symOffset:])
		if err != nil {
			continue
		}
		if getSymbolName(symRec) == name {
			results = append(results, symOffset)
		}
	}
	return results
}

// PSI (Public Symbol Index) extends GSI with address-sorted lookup.
type PSI struct {
	*GSI
	header  PSIHeader
	addrMap []uint32 // Sorted offsets into symbol record stream by address
}

// ParsePSI parses a Public Symbol Index stream.
func ParsePSI(data []byte) (*PSI, error) {
	if len(data) < 16 {
		return nil, ErrUnexpectedEnd
	}

	r := stream.NewReader(data)

	// First parse GSI header
	verSig, _ := r.ReadU32()
	verHdr, _ := r.ReadU32()
	hrSize, _ := r.ReadU32()
	bucketSize, _ := r.ReadU32()

	_ = verSig
	_ = verHdr

	// Skip hash records and buckets to get to PSI header
	if err := r.Skip(int(hrSize)); err != nil {
		return nil, err
	}
	if err := r.Skip(int(bucketSize)); err != nil {
		return nil, err
	}

	// Read PSI-specific header
	var header PSIHeader
	var err error

	header.SymHash, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	header.AddrMapSize, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	header.NumThunks, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	header.SizeOfThunk, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	header.ISectThunkTable, err = r.ReadU16()
	if err != nil {
		return nil, err
	}

	header.Padding, err = r.ReadU16()
	if err != nil {
		return nil, err
	}

	header.OffThunkTable, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	header.NumSects, err = r.ReadU32()
	if err != nil {
		return nil, err
	}

	// Read address map
	numAddrs := header.AddrMapSize / 4
	addrMap := make([]uint32, 0, numAddrs)
	for i := uint32(0); i < numAddrs; i++ {
		offset, err := r.ReadU32()
		if err != nil {
			break
		}
		addrMap = append(addrMap, offset)
	}

	// Parse GSI part separately for hash records
	gsi, err := ParseGSI(data)
	if err != nil {
		return nil, err
	}

	return &PSI{
		GSI:     gsi,
		header:  header,
		addrMap: addrMap,
	}, nil
}

// AddressMap returns the address-sorted symbol offsets.
// These are offsets into the symbol record stream, sorted by symbol address.
func (p *PSI) AddressMap() []uint32 {
	return p.addrMap
}

// SymbolAddress represents a symbol's location for address lookup.
type SymbolAddress struct {
	Section   uint16
	Offset    uint32
	SymOffset uint32 // Offset in symbol record stream
}

// AddressIndex provides fast address-based symbol lookup.
type AddressIndex struct {
	entries []SymbolAddress
}

// NewAddressIndex creates an address index from PSI address map and symbol data.
func NewAddressIndex(addrMap []uint32, symData []byte) *AddressIndex {
	entries := make([]SymbolAddress, 0, len(addrMap))

	for _, symOffset := range addrMap {
		if int(symOffset)+10 > len(symData) {
			continue
		}

		// Parse just enough of the symbol to get section:offset
		rec, _, err := ParseSymbolRecord(symData[symOffset:])
		if err != nil {
			continue
		}

		if rec.Kind != S_PUB32 {
			continue
		}

		// Parse public symbol to get address
		sym, err := ParsePublicSym32(rec.Data)
		if err != nil {
			continue
		}

		entries = append(entries, SymbolAddress{
			Section:   sym.Segment,
			Offset:    sym.Offset,
			SymOffset: symOffset,
		})
	}

	// Sort by section then offset
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Section != entries[j].Section {
			return entries[i].Section < entries[j].Section
		}
		return entries[i].Offset < entries[j].Offset
	})

	return &AddressIndex{entries: entries}
}

// FindByAddress finds the symbol at or before the given address.
// Returns the symbol offset and whether an exact match was found.
func (idx *AddressIndex) FindByAddress(section uint16, offset uint32) (symOffset uint32, exact bool, found bool) {
	if len(idx.entries) == 0 {
		return 0, false, false
	}

	// Binary search for the address
	i := sort.Search(len(idx.entries), func(i int) bool {
		if idx.entries[i].Section != section {
			return idx.entries[i].Section > section
		}
		return idx.entries[i].Offset >= offset
	})

	if i < len(idx.entries) && idx.entries[i].Section == section && idx.entries[i].Offset == offset {
		return idx.entries[i].SymOffset, true, true
	}

	// Return the symbol just before this address (containing symbol)
	if i > 0 {
		prev := idx.entries[i-1]
		if prev.Section == section {
			return prev.SymOffset, false, true
		}
	}

	return 0, false, false
}

// NameIndex provides hash-based symbol name lookup built directly from a
// module's own private symbol stream, for use where no GSI hash table
// exists to consult (e.g. module-local symbols).
type NameIndex struct {
	buckets    [][]nameEntry
	numBuckets uint32
}

type nameEntry struct {
	name      string
	symOffset uint32
}

// NewNameIndex creates a name index from symbol data.
func NewNameIndex(symData []byte) *NameIndex {
	idx := &NameIndex{
		buckets:    make([][]nameEntry, numHashBuckets),
		numBuckets: numHashBuckets,
	}

	r := stream.NewReader(symData)
	for r.Remaining() > 4 {
		offset := r.Offset()
		rec, size, err := ParseSymbolRecord(symData[offset:])
		if err != nil {
			break
		}

		name := getSymbolName(rec)
		if name != "" {
			bucket := hash.U32([]byte(name)) % idx.numBuckets
			idx.buckets[bucket] = append(idx.buckets[bucket], nameEntry{
				name:      name,
				symOffset: uint32(offset),
			})
		}

		r.Skip(size)
	}

	return idx
}

// FindByName finds symbols with the given name.
// Returns offsets into the symbol record stream.
func (idx *NameIndex) FindByName(name string) []uint32 {
	bucket := hash.U32([]byte(name)) % idx.numBuckets
	entries := idx.buckets[bucket]

	var results []uint32
	for _, e := range entries {
		if e.name == name {
			results = append(results, e.symOffset)
		}
	}
	return results
}

// getSymbolName extracts name from a symbol record.
func getSymbolName(rec *SymbolRecord) string {
	switch rec.Kind {
	case S_PUB32:
		if sym, err := ParsePublicSym32(rec.Data); err == nil {
			return sym.Name
		}
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID:
		if sym, err := ParseProcSym(rec.Data); err == nil {
			return sym.Name
		}
	case S_GDATA32, S_LDATA32:
		if sym, err := ParseDataSym(rec.Data); err == nil {
			return sym.Name
		}
	case S_UDT:
		if sym, err := ParseUDTSym(rec.Data); err == nil {
			return sym.Name
		}
	case S_CONSTANT:
		if sym, err := ParseConstantSym(rec.Data); err == nil {
			return sym.Name
		}
	}
	return ""
}
