package msf

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrReadOnly is the error for a write to a container that was opened
// without write access. No function in this package returns it.
var ErrReadOnly = errors.New("msf: container is read-only")

// pendingStream accumulates the bytes written to one stream before Commit
// assigns it blocks.
type pendingStream struct {
	data   []byte
	exists bool // distinguishes a zero-length stream from a deleted one
}

// Writer builds a new generation of an MSF container: it stages stream
// contents in memory, then Commit() allocates blocks for everything staged,
// writes the new directory, flips the active FPM copy, and writes the
// superblock last so a crash mid-commit never leaves a reader looking at a
// half-updated container.
type Writer struct {
	w         io.WriterAt
	blockSize uint32
	fpm       *FreePageMap
	fpmWhich  uint32 // which FPM copy is currently authoritative (1 or 2) before this commit
	streams   map[uint32]*pendingStream
	numBase   uint32 // number of stream slots: those the container had when the writer was created plus any added since
}

// NewWriter creates a Writer for a brand-new container with the given block
// size; the caller adds streams with SetStream/AddStream and finishes with
// Commit.
func NewWriter(w io.WriterAt, blockSize uint32) *Writer {
	return &Writer{
		w:         w,
		blockSize: blockSize,
		fpm:       NewFreePageMap(blockSize, blockSize), // reserve block 0 (superblock) + the interleaved FPM pair
		fpmWhich:  1,
		streams:   make(map[uint32]*pendingStream),
	}
}

// OpenWriter creates a Writer seeded from an existing container's current
// superblock, directory, and FPM. It reads the contents of every non-nil
// stream into the Writer, so Commit writes all of them, changed or not, to
// newly allocated blocks.
func OpenWriter(w io.WriterAt, r io.ReaderAt, sb *SuperBlock, dir *StreamDirectory) (*Writer, error) {
	readBlock := func(blockNum uint32) ([]byte, error) {
		buf := make([]byte, sb.BlockSize)
		if _, err := r.ReadAt(buf, sb.BlockOffset(blockNum)); err != nil {
			return nil, err
		}
		return buf, nil
	}

	fpm, err := ReadFreePageMap(sb.NumBlocks, sb.BlockSize, sb.FreeBlockMapBlock, readBlock)
	if err != nil {
		return nil, errors.Wrap(err, "msf: reading existing free page map")
	}

	writer := &Writer{
		w:         w,
		blockSize: sb.BlockSize,
		fpm:       fpm,
		fpmWhich:  sb.FreeBlockMapBlock,
		streams:   make(map[uint32]*pendingStream),
		numBase:   dir.NumStreams,
	}

	for i := uint32(0); i < dir.NumStreams; i++ {
		if dir.StreamSizes[i] == NilStreamSize {
			continue
		}
		blocks, err := dir.GetStreamBlocks(i)
		if err != nil {
			return nil, err
		}
		data := make([]byte, dir.StreamSizes[i])
		remaining := dir.StreamSizes[i]
		for j, b := range blocks {
			toRead := sb.BlockSize
			if toRead > remaining {
				toRead = remaining
			}
			if _, err := r.ReadAt(data[uint32(j)*sb.BlockSize:uint32(j)*sb.BlockSize+toRead], sb.BlockOffset(b)); err != nil {
				return nil, errors.Wrapf(err, "msf: reading stream %d block %d", i, b)
			}
			remaining -= toRead
		}
		writer.streams[i] = &pendingStream{data: data, exists: true}
		for _, b := range blocks {
			writer.fpm.SetUsed(b)
		}
	}

	return writer, nil
}

// SetStream replaces the entire contents of a stream, creating it (and any
// intervening streams as nil) if streamIndex is beyond the current count.
func (wr *Writer) SetStream(streamIndex uint32, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	wr.streams[streamIndex] = &pendingStream{data: cp, exists: true}
	if streamIndex+1 > wr.numBase {
		wr.numBase = streamIndex + 1
	}
}

// AddStream appends a new stream and returns its assigned index.
func (wr *Writer) AddStream(data []byte) uint32 {
	idx := wr.numBase
	wr.SetStream(idx, data)
	return idx
}

// DeleteStream marks a stream as nil in the next generation, extending the
// stream count if streamIndex is beyond it. The stream's old blocks are not
// returned to the free page map.
func (wr *Writer) DeleteStream(streamIndex uint32) {
	wr.streams[streamIndex] = &pendingStream{exists: false}
	if streamIndex+1 > wr.numBase {
		wr.numBase = streamIndex + 1
	}
}

// Commit allocates new blocks for every stream the Writer holds, serializes
// the stream directory, writes the inactive FPM copy, and finally switches
// the superblock to point at it. A Writer from OpenWriter holds every non-nil
// stream of the container, so all of them are rewritten; slots the Writer
// does not hold are written as nil. Blocks of the previous generation stay
// marked in use: Commit never frees a block.
func (wr *Writer) Commit() error {
	newWhich := uint32(1)
	if wr.fpmWhich == 1 {
		newWhich = 2
	}

	numStreams := wr.numBase
	sizes := make([]uint32, numStreams)
	blockLists := make([][]uint32, numStreams)
	for i := range sizes {
		// An untouched slot is nil, whether it was nil before this writer was
		// opened or it's an intervening slot SetStream/AddStream skipped over
		// on a brand-new container; only a slot actually written below gets a
		// real size.
		sizes[i] = NilStreamSize
	}

	for i := uint32(0); i < numStreams; i++ {
		ps, touched := wr.streams[uint32(i)]
		if !touched {
			continue // caller never mentioned this stream; nothing to (re)allocate
		}
		if !ps.exists {
			sizes[i] = NilStreamSize
			continue
		}
		sizes[i] = uint32(len(ps.data))
		numBlocks := (uint32(len(ps.data)) + wr.blockSize - 1) / wr.blockSize
		blocks := make([]uint32, numBlocks)
		for j := range blocks {
			blocks[j] = wr.fpm.AllocateBlock()
		}
		blockLists[i] = blocks

		if err := wr.writeStreamBlocks(ps.data, blocks); err != nil {
			return err
		}
	}

	dirBytes := serializeDirectory(numStreams, sizes, blockLists)
	dirNumBlocks := (uint32(len(dirBytes)) + wr.blockSize - 1) / wr.blockSize
	dirBlocks := make([]uint32, dirNumBlocks)
	for i := range dirBlocks {
		dirBlocks[i] = wr.fpm.AllocateBlock()
	}
	if err := wr.writeStreamBlocks(dirBytes, dirBlocks); err != nil {
		return err
	}

	blockMapBytes := make([]byte, len(dirBlocks)*4)
	for i, b := range dirBlocks {
		binary.LittleEndian.PutUint32(blockMapBytes[i*4:], b)
	}
	blockMapAddr := wr.fpm.AllocateBlock()
	if err := wr.writeStreamBlocks(blockMapBytes, []uint32{blockMapAddr}); err != nil {
		return err
	}

	if err := wr.writeFPM(newWhich); err != nil {
		return err
	}

	sb := SuperBlock{
		BlockSize:         wr.blockSize,
		FreeBlockMapBlock: newWhich,
		NumBlocks:         wr.fpm.NumBlocks(),
		NumDirectoryBytes: uint32(len(dirBytes)),
		BlockMapAddr:      blockMapAddr,
	}
	copy(sb.FileMagic[:], []byte(Magic))

	if err := wr.writeSuperBlock(&sb); err != nil {
		return err
	}
	wr.fpmWhich = newWhich
	return nil
}

func (wr *Writer) writeStreamBlocks(data []byte, blocks []uint32) error {
	remaining := uint32(len(data))
	for i, b := range blocks {
		toWrite := wr.blockSize
		if toWrite > remaining {
			toWrite = remaining
		}
		off := int64(b) * int64(wr.blockSize)
		start := uint32(i) * wr.blockSize
		block := make([]byte, wr.blockSize)
		copy(block, data[start:start+toWrite])
		if _, err := wr.w.WriteAt(block, off); err != nil {
			return errors.Wrapf(err, "msf: writing block %d", b)
		}
		remaining -= toWrite
	}
	return nil
}

func (wr *Writer) writeFPM(which uint32) error {
	blockNums := fpmBlockNumbers(wr.fpm.NumBlocks(), wr.blockSize, which)
	serialized := wr.fpm.Serialize(which)
	for i, block := range serialized {
		off := int64(blockNums[i]) * int64(wr.blockSize)
		if _, err := wr.w.WriteAt(block, off); err != nil {
			return errors.Wrapf(err, "msf: writing FPM block %d", blockNums[i])
		}
	}
	return nil
}

func (wr *Writer) writeSuperBlock(sb *SuperBlock) error {
	buf := make([]byte, SuperBlockSize)
	copy(buf[0:32], sb.FileMagic[:])
	binary.LittleEndian.PutUint32(buf[32:36], sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[36:40], sb.FreeBlockMapBlock)
	binary.LittleEndian.PutUint32(buf[40:44], sb.NumBlocks)
	binary.LittleEndian.PutUint32(buf[44:48], sb.NumDirectoryBytes)
	binary.LittleEndian.PutUint32(buf[48:52], sb.Unknown)
	binary.LittleEndian.PutUint32(buf[52:56], sb.BlockMapAddr)

	_, err := wr.w.WriteAt(buf, 0)
	if err != nil {
		return errors.Wrap(err, "msf: writing superblock")
	}
	return nil
}

func serializeDirectory(numStreams uint32, sizes []uint32, blockLists [][]uint32) []byte {
	out := make([]byte, 4+len(sizes)*4)
	binary.LittleEndian.PutUint32(out[0:4], numStreams)
	for i, s := range sizes {
		binary.LittleEndian.PutUint32(out[4+i*4:], s)
	}
	for i := range sizes {
		if sizes[i] == NilStreamSize {
			continue
		}
		for _, b := range blockLists[i] {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], b)
			out = append(out, tmp[:]...)
		}
	}
	return out
}
