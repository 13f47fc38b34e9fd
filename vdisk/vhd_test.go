package vdisk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fillFooter(buf []byte, diskType uint32, dataOffset, currentSize uint64) {
	copy(buf[vhdFOffCookie:], VHD_COOKIE)
	putBe32(buf, vhdFOffFeatures, VHD_FEATURES)
	putBe32(buf, vhdFOffFormatVersion, VHD_SUPPORTED_VERSION)
	putBe64(buf, vhdFOffDataOffset, dataOffset)
	putBe64(buf, vhdFOffCurrentSize, currentSize)
	putBe32(buf, vhdFOffDiskType, diskType)
	recomputeVHDChecksum(buf)
}

// buildVHDFixedFixture writes a FIXED VHD: raw data followed by a footer.
func buildVHDFixedFixture(t *testing.T, diskSize uint64, fill byte) string {
	t.Helper()

	buf := make([]byte, diskSize+VHD_FOOTER_SIZE)
	for i := uint64(0); i < diskSize; i++ {
		buf[i] = fill
	}
	fillFooter(buf[diskSize:], VHD_DISK_TYPE_FIXED, VHD_NO_DATA_OFFSET, diskSize)

	path := filepath.Join(t.TempDir(), "disk.vhd")
	assert.NoError(t, os.WriteFile(path, buf, 0644))
	return path
}

// dynamicFixtureLayout captures the fixed offsets used by buildVHDDynamicFixture,
// so tests can compute expectations without recomputing the layout by hand.
type dynamicFixtureLayout struct {
	blockSize       uint32
	bitmapBytes     uint64
	maxTableEntries uint32
	tableOffset     uint64
	dataStart       uint64
	footerAtEnd     uint64
	fileLength      uint64
}

// buildVHDDynamicFixture writes a DYNAMIC VHD with a single pre-allocated
// block (logical block 0, filled with fill) and maxTableEntries-1 additional
// unallocated blocks.
func buildVHDDynamicFixture(t *testing.T, blockSize uint32, maxTableEntries uint32, fill byte) (string, dynamicFixtureLayout) {
	t.Helper()

	bmBytes := bitmapBytes(blockSize)
	tableOffset := uint64(VHD_FOOTER_SIZE + VHD_DYN_HEADER_SIZE)
	batBytes := uint64(maxTableEntries) * 4
	dataStart := round_up(tableOffset+batBytes, VHD_SECTOR_SIZE)

	perBlock := uint64(blockSize) + bmBytes
	footerAtEnd := dataStart + perBlock
	fileLength := footerAtEnd + VHD_FOOTER_SIZE

	buf := make([]byte, fileLength)

	dhOff := uint64(VHD_FOOTER_SIZE)

	footerBuf := buf[0:VHD_FOOTER_SIZE]
	fillFooter(footerBuf, VHD_DISK_TYPE_DYNAMIC, dhOff, uint64(maxTableEntries)*uint64(blockSize))

	dh := buf[dhOff : dhOff+VHD_DYN_HEADER_SIZE]
	copy(dh[vhdDOffCookie:], VHD_DYNAMIC_COOKIE)
	putBe64(dh, vhdDOffDataOffset, VHD_NO_DATA_OFFSET)
	putBe64(dh, vhdDOffTableOffset, tableOffset)
	putBe32(dh, vhdDOffHeaderVersion, VHD_SUPPORTED_VERSION)
	putBe32(dh, vhdDOffMaxTableEntries, maxTableEntries)
	putBe32(dh, vhdDOffBlockSize, blockSize)

	bat := buf[tableOffset : tableOffset+batBytes]
	for i := uint32(0); i < maxTableEntries; i++ {
		putBe32(bat, int(i)*4, VHD_BAT_UNUSED)
	}
	putBe32(bat, 0, uint32(dataStart/VHD_SECTOR_SIZE))

	bitmap := buf[dataStart : dataStart+bmBytes]
	for i := range bitmap {
		bitmap[i] = 0xFF
	}
	block := buf[dataStart+bmBytes : dataStart+bmBytes+uint64(blockSize)]
	for i := range block {
		block[i] = fill
	}

	copy(buf[footerAtEnd:footerAtEnd+VHD_FOOTER_SIZE], footerBuf)

	path := filepath.Join(t.TempDir(), "disk.vhd")
	assert.NoError(t, os.WriteFile(path, buf, 0644))

	return path, dynamicFixtureLayout{
		blockSize:       blockSize,
		bitmapBytes:     bmBytes,
		maxTableEntries: maxTableEntries,
		tableOffset:     tableOffset,
		dataStart:       dataStart,
		footerAtEnd:     footerAtEnd,
		fileLength:      fileLength,
	}
}

func TestVHD_FixedProbeAndReadWrite(t *testing.T) {
	path := buildVHDFixedFixture(t, 4096, 0x11)
	assert.True(t, ProbeVHD(path))
	assert.False(t, ProbeVDI(path))

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()

	assert.Equal(t, uint64(4096), d.Length())

	buf := make([]byte, 16)
	assert.NoError(t, d.Read(buf, 0, 16, 16))
	for _, b := range buf {
		assert.Equal(t, byte(0x11), b)
	}

	assert.NoError(t, d.Write([]byte{0x22, 0x22, 0x22, 0x22}, 0, 4, 4))
	assert.NoError(t, d.Read(buf, 0, 4, 4))
	assert.Equal(t, []byte{0x22, 0x22, 0x22, 0x22}, buf[:4])

	err = d.Read(buf, 4090, 16, 16)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestVHD_DynamicReadAllocatedAndZeroFill(t *testing.T) {
	path, layout := buildVHDDynamicFixture(t, 1024, 4, 0xBB)
	assert.True(t, ProbeVHD(path))

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()

	assert.Equal(t, uint64(layout.maxTableEntries)*uint64(layout.blockSize), d.Length())

	buf := make([]byte, 16)
	assert.NoError(t, d.Read(buf, 0, 16, 16))
	for _, b := range buf {
		assert.Equal(t, byte(0xBB), b)
	}

	// block 1 (logical offset == blockSize) was never allocated: reads
	// zero-fill rather than erroring, per spec.md's VHD sparse-read rule.
	assert.NoError(t, d.Read(buf, uint64(layout.blockSize), 16, 16))
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestVHD_DynamicWriteAllocatesBlock(t *testing.T) {
	path, layout := buildVHDDynamicFixture(t, 1024, 4, 0xBB)

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()

	before, err := os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(layout.fileLength), before.Size())

	payload := []byte{1, 2, 3, 4}
	// block 1 starts at logical offset blockSize and is unallocated.
	assert.NoError(t, d.Write(payload, uint64(layout.blockSize), 4, 4))

	after, err := os.Stat(path)
	assert.NoError(t, err)
	wantGrowth := int64(layout.blockSize) + int64(layout.bitmapBytes)
	assert.Equal(t, before.Size()+wantGrowth, after.Size())

	readBack := make([]byte, 4)
	assert.NoError(t, d.Read(readBack, uint64(layout.blockSize), 4, 4))
	assert.Equal(t, payload, readBack)

	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	headFooter := raw[0:VHD_FOOTER_SIZE]
	tailFooter := raw[len(raw)-VHD_FOOTER_SIZE:]
	assert.Equal(t, headFooter, tailFooter)
	assert.True(t, checkVHDFooter(decodeVHDFooter(headFooter)) == nil)

	batBuf := raw[layout.tableOffset : layout.tableOffset+uint64(layout.maxTableEntries)*4]
	entry := be32(batBuf, 4)
	assert.NotEqual(t, VHD_BAT_UNUSED, entry)
}

func TestVHD_ProbeRejectsTooSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.vhd")
	assert.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))
	assert.False(t, ProbeVHD(path))
}

func TestVHD_DynamicRejectsZeroBlockSize(t *testing.T) {
	path, _ := buildVHDDynamicFixture(t, 1024, 4, 0x99)

	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	dhOff := VHD_FOOTER_SIZE
	putBe32(raw, dhOff+vhdDOffBlockSize, 0)
	assert.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = openVHD(path)
	assert.True(t, IsBadFormat(err))
}
