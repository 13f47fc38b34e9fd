package vdisk

/*
Copyright (c) 2023 Yunpeng Deng
Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:
The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.
THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// VHD accessor (component C), covering both FIXED and DYNAMIC disk types.
// Footer/dynamic-header layout follows
// original_source/src/virtualdisk/virt_disk_vhd.h; the DYNAMIC read/write
// path (never implemented by the original C++ source — its header called
// DYNAMIC "not yet supported") follows spec.md §4.C.

// Byte offsets within the 512-byte VHD footer (all big-endian).
const (
	vhdFOffCookie        = 0
	vhdFOffFeatures      = 8
	vhdFOffFormatVersion = 12
	vhdFOffDataOffset    = 16
	vhdFOffCurrentSize   = 40
	vhdFOffDiskType      = 60
	vhdFOffChecksum      = 64
)

// Byte offsets within the 1024-byte VHD dynamic header (all big-endian).
const (
	vhdDOffCookie          = 0
	vhdDOffDataOffset      = 8
	vhdDOffTableOffset     = 16
	vhdDOffHeaderVersion   = 24
	vhdDOffMaxTableEntries = 28
	vhdDOffBlockSize       = 32
)

type vhdFooter struct {
	cookie        string
	features      uint32
	formatVersion uint32
	dataOffset    uint64
	currentSize   uint64
	diskType      uint32
	checksum      uint32
}

func decodeVHDFooter(buf []byte) vhdFooter {
	return vhdFooter{
		cookie:        string(buf[vhdFOffCookie : vhdFOffCookie+8]),
		features:      be32(buf, vhdFOffFeatures),
		formatVersion: be32(buf, vhdFOffFormatVersion),
		dataOffset:    be64(buf, vhdFOffDataOffset),
		currentSize:   be64(buf, vhdFOffCurrentSize),
		diskType:      be32(buf, vhdFOffDiskType),
		checksum:      be32(buf, vhdFOffChecksum),
	}
}

func checkVHDFooter(f vhdFooter) error {
	if f.cookie != VHD_COOKIE {
		return newErr(KindBadFormat, "vhd: bad cookie")
	}
	if f.formatVersion != VHD_SUPPORTED_VERSION {
		return newErr(KindBadFormat, "vhd: unsupported format version")
	}
	if f.features != VHD_FEATURES {
		return newErr(KindBadFormat, "vhd: unsupported feature flags")
	}
	if f.diskType != VHD_DISK_TYPE_FIXED && f.diskType != VHD_DISK_TYPE_DYNAMIC {
		return newErr(KindBadFormat, "vhd: unsupported disk type")
	}
	return nil
}

type vhdDynamicHeader struct {
	cookie          string
	dataOffset      uint64
	tableOffset     uint64
	headerVersion   uint32
	maxTableEntries uint32
	blockSize       uint32
}

func decodeVHDDynamicHeader(buf []byte) vhdDynamicHeader {
	return vhdDynamicHeader{
		cookie:          string(buf[vhdDOffCookie : vhdDOffCookie+8]),
		dataOffset:      be64(buf, vhdDOffDataOffset),
		tableOffset:     be64(buf, vhdDOffTableOffset),
		headerVersion:   be32(buf, vhdDOffHeaderVersion),
		maxTableEntries: be32(buf, vhdDOffMaxTableEntries),
		blockSize:       be32(buf, vhdDOffBlockSize),
	}
}

// ProbeVHD reports whether filename looks like a VHD image (footer only —
// it deliberately avoids reading the dynamic header/BAT so that ruling out
// a large non-VHD file stays cheap), without mutating the file or leaving
// a descriptor open. Mirrors
// original_source/src/vhd/vhd_disk.cpp:is_vhd_format_file.
func ProbeVHD(filename string) bool {
	bf, err := openBlockFile(filename, false)
	if err != nil {
		return false
	}
	defer bf.Close()

	length, err := bf.Len()
	if err != nil || length < VHD_FOOTER_SIZE {
		return false
	}

	buf := make([]byte, VHD_FOOTER_SIZE)
	if err := bf.ReadAt(buf, length-VHD_FOOTER_SIZE); err != nil {
		return false
	}

	footer := decodeVHDFooter(buf)
	if checkVHDFooter(footer) != nil {
		return false
	}
	if footer.diskType == VHD_DISK_TYPE_FIXED {
		return footer.dataOffset == VHD_NO_DATA_OFFSET && footer.currentSize <= length-VHD_FOOTER_SIZE
	}
	// DYNAMIC: leave dynamic-header/BAT validation to construction.
	return footer.dataOffset <= length
}

// vhdDisk implements Disk over a Microsoft VHD image, FIXED or DYNAMIC.
type vhdDisk struct {
	file       *blockFile
	fileLength uint64
	footer     vhdFooter
	footerRaw  []byte // the full 512 footer bytes last read/written, parsed fields included

	dynamic     bool
	dynHeader   vhdDynamicHeader
	bat         []uint32
	bitmapBytes uint64
}

func openVHD(filename string) (Disk, error) {
	bf, err := openBlockFile(filename, true)
	if err != nil {
		return nil, err
	}

	d, err := buildVHDDisk(bf)
	if err != nil {
		bf.Close()
		return nil, err
	}
	return d, nil
}

func buildVHDDisk(bf *blockFile) (*vhdDisk, error) {
	length, err := bf.Len()
	if err != nil {
		return nil, err
	}
	if length < VHD_FOOTER_SIZE {
		return nil, newErr(KindBadFormat, "vhd: file too small for footer")
	}

	footerBuf := make([]byte, VHD_FOOTER_SIZE)
	if err := bf.ReadAt(footerBuf, length-VHD_FOOTER_SIZE); err != nil {
		return nil, wrapErr(KindBadFormat, "vhd: read footer", err)
	}
	footer := decodeVHDFooter(footerBuf)
	if err := checkVHDFooter(footer); err != nil {
		return nil, err
	}

	d := &vhdDisk{file: bf, fileLength: length, footer: footer, footerRaw: footerBuf}

	switch footer.diskType {
	case VHD_DISK_TYPE_FIXED:
		if footer.dataOffset != VHD_NO_DATA_OFFSET {
			return nil, newErr(KindBadFormat, "vhd: fixed disk with data_offset set")
		}
		if footer.currentSize > length-VHD_FOOTER_SIZE {
			return nil, newErr(KindBadFormat, "vhd: current_size exceeds file length")
		}
		return d, nil

	case VHD_DISK_TYPE_DYNAMIC:
		if err := d.loadDynamic(footer.dataOffset, length); err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, newErr(KindBadFormat, "vhd: unsupported disk type")
	}
}

func (d *vhdDisk) loadDynamic(headerOffset, fileLength uint64) error {
	hbuf := make([]byte, VHD_DYN_HEADER_SIZE)
	if err := d.file.ReadAt(hbuf, headerOffset); err != nil {
		return wrapErr(KindBadFormat, "vhd: read dynamic header", err)
	}
	dh := decodeVHDDynamicHeader(hbuf)

	if dh.cookie != VHD_DYNAMIC_COOKIE {
		return newErr(KindBadFormat, "vhd: bad dynamic header cookie")
	}
	if dh.headerVersion != VHD_SUPPORTED_VERSION {
		return newErr(KindBadFormat, "vhd: unsupported dynamic header version")
	}
	if dh.dataOffset != VHD_NO_DATA_OFFSET {
		return newErr(KindBadFormat, "vhd: dynamic header data_offset must be all-ones")
	}
	if dh.blockSize == 0 {
		return newErr(KindBadFormat, "vhd: block_size must be non-zero")
	}
	if dh.tableOffset > fileLength {
		return newErr(KindBadFormat, "vhd: table_offset beyond file length")
	}
	batBytes := uint64(dh.maxTableEntries) * 4
	if dh.tableOffset+batBytes > fileLength {
		return newErr(KindBadFormat, "vhd: bat extends beyond file length")
	}

	batBuf := make([]byte, batBytes)
	if batBytes > 0 {
		if err := d.file.ReadAt(batBuf, dh.tableOffset); err != nil {
			return wrapErr(KindBadFormat, "vhd: read bat", err)
		}
	}
	bat := make([]uint32, dh.maxTableEntries)
	for i := range bat {
		bat[i] = be32(batBuf, i*4)
	}

	d.dynamic = true
	d.dynHeader = dh
	d.bat = bat
	d.bitmapBytes = bitmapBytes(dh.blockSize)
	return nil
}

func (d *vhdDisk) Length() uint64 {
	return d.footer.currentSize
}

func (d *vhdDisk) Close() error {
	return d.file.Close()
}

func (d *vhdDisk) Read(buf []byte, start, length, bufferLength uint64) error {
	length = min64(length, bufferLength)
	if length == 0 {
		return nil
	}

	if d.dynamic {
		return d.readDynamic(buf, start, length)
	}
	return d.readFixed(buf, start, length)
}

func (d *vhdDisk) readFixed(buf []byte, start, length uint64) error {
	if start+length > d.footer.currentSize {
		return ErrOutOfRange
	}
	return d.file.ReadAt(buf[:length], start)
}

func (d *vhdDisk) readDynamic(buf []byte, start, length uint64) error {
	blockSize := uint64(d.dynHeader.blockSize)
	curPos := start
	remaining := length
	cursor := buf

	for remaining > 0 {
		blockNumber := curPos / blockSize
		// Treat >= as out of range: the original source's strict '>'
		// check permitted a one-past-the-end read; flagged as a defect
		// in spec.md §9 and corrected here.
		if blockNumber >= uint64(d.dynHeader.maxTableEntries) {
			return ErrOutOfRange
		}
		offsetInBlock := curPos % blockSize
		take := min64(blockSize-offsetInBlock, remaining)

		batEntry := d.bat[blockNumber]
		if batEntry == VHD_BAT_UNUSED {
			for i := uint64(0); i < take; i++ {
				cursor[i] = 0
			}
		} else {
			fileOff := uint64(batEntry)*VHD_SECTOR_SIZE + d.bitmapBytes + offsetInBlock
			if err := d.file.ReadAt(cursor[:take], fileOff); err != nil {
				return err
			}
		}

		curPos += take
		remaining -= take
		cursor = cursor[take:]
	}
	return nil
}

func (d *vhdDisk) Write(buf []byte, start, length, bufferLength uint64) error {
	length = min64(length, bufferLength)
	if length == 0 {
		return nil
	}

	if d.dynamic {
		return d.writeDynamic(buf, start, length)
	}
	return d.writeFixed(buf, start, length)
}

func (d *vhdDisk) writeFixed(buf []byte, start, length uint64) error {
	if start+length > d.footer.currentSize {
		return ErrOutOfRange
	}
	return d.file.WriteAt(buf[:length], start)
}

func (d *vhdDisk) writeDynamic(buf []byte, start, length uint64) error {
	blockSize := uint64(d.dynHeader.blockSize)
	curPos := start
	remaining := length
	cursor := buf

	for remaining > 0 {
		blockNumber := curPos / blockSize
		if blockNumber >= uint64(d.dynHeader.maxTableEntries) {
			return ErrOutOfRange
		}
		offsetInBlock := curPos % blockSize
		take := min64(blockSize-offsetInBlock, remaining)

		if d.bat[blockNumber] == VHD_BAT_UNUSED {
			if err := d.allocateBlock(blockNumber); err != nil {
				return err
			}
		}

		fileOff := uint64(d.bat[blockNumber])*VHD_SECTOR_SIZE + d.bitmapBytes + offsetInBlock
		if err := d.file.WriteAt(cursor[:take], fileOff); err != nil {
			return err
		}

		curPos += take
		remaining -= take
		cursor = cursor[take:]
	}
	return nil
}

// allocateBlock grows the file by one block (plus its bitmap), relocates
// the trailing footer, refreshes the footer copy at offset 0, fills the
// new bitmap with 0xFF, and persists the new BAT entry. The new bitmap and
// block start at the old trailing footer's offset (end of file minus 512),
// not at the old end of file.
func (d *vhdDisk) allocateBlock(blockNumber uint64) error {
	endOfFile, err := d.file.Len()
	if err != nil {
		return err
	}
	if endOfFile < VHD_FOOTER_SIZE || endOfFile%VHD_SECTOR_SIZE != 0 {
		return ErrCorrupt
	}

	// The new block replaces the trailing footer's current slot; the
	// footer itself is relocated past the block once it's grown in. This
	// keeps the block contiguous with the last allocated block instead of
	// leaving the old footer stranded mid-file.
	newBlockOffset := endOfFile - VHD_FOOTER_SIZE

	blockSize := uint64(d.dynHeader.blockSize)
	grown := blockSize + d.bitmapBytes
	if err := d.file.Grow(grown); err != nil {
		return err
	}

	newCurrentSize := endOfFile + grown
	d.footer.currentSize = newCurrentSize
	putBe64(d.footerRaw, vhdFOffCurrentSize, newCurrentSize)
	recomputeVHDChecksum(d.footerRaw)

	// Trailing footer at the new end of file, copy-at-start at offset 0,
	// per invariant 5 in spec.md §3.
	if err := d.file.WriteAt(d.footerRaw, newCurrentSize-VHD_FOOTER_SIZE); err != nil {
		return err
	}
	if err := d.file.WriteAt(d.footerRaw, 0); err != nil {
		return err
	}

	bitmap := make([]byte, d.bitmapBytes)
	for i := range bitmap {
		bitmap[i] = 0xFF
	}
	if err := d.file.WriteAt(bitmap, newBlockOffset); err != nil {
		return err
	}

	newEntry := uint32(newBlockOffset / VHD_SECTOR_SIZE)
	if newEntry == VHD_BAT_UNUSED {
		return ErrCorrupt
	}
	d.bat[blockNumber] = newEntry

	batEntryBuf := make([]byte, 4)
	putBe32(batEntryBuf, 0, newEntry)
	batEntryOffset := d.dynHeader.tableOffset + 4*blockNumber
	if err := d.file.WriteAt(batEntryBuf, batEntryOffset); err != nil {
		return err
	}

	d.fileLength = newCurrentSize
	return nil
}

// recomputeVHDChecksum fills in footerBuf's checksum field in place per
// spec.md §6: zero the checksum field, sum all 512 bytes as wrapping 8-bit
// additions, store the one's-complement of that 8-bit sum in the 32-bit
// big-endian checksum field. This reproduces the observed
// (non-spec-compliant, see §9) source behavior rather than the canonical
// VHD 32-bit-sum algorithm. Every other footer byte — timestamp, creator
// fields, UUID, geometry — is left untouched, so rewriting the footer on
// allocation never discards information the original writer put there.
func recomputeVHDChecksum(footerBuf []byte) {
	putBe32(footerBuf, vhdFOffChecksum, 0)

	var sum uint8
	for _, b := range footerBuf {
		sum += b
	}
	putBe32(footerBuf, vhdFOffChecksum, uint32(^sum))
}
