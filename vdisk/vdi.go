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

// VDI 1.1 accessor (component B). Ported from the field layout in
// original_source/src/virtualdisk/virt_disk_vdi.h, read via explicit
// little-endian offsets instead of a packed-struct memory cast.

// Byte offsets within the 400-byte VDI header.
const (
	vdiOffMagic          = 64
	vdiOffVersionMinor   = 68
	vdiOffVersionMajor   = 70
	vdiOffHeaderLen      = 72
	vdiOffFileType       = 76
	vdiOffImageFlags     = 80
	vdiOffComment        = 84
	vdiOffBlockDataOff   = vdiOffComment + 256 // 340
	vdiOffImageDataOff   = vdiOffBlockDataOff + 4
	vdiOffGeoCylinders   = vdiOffImageDataOff + 4
	vdiOffGeoHeads       = vdiOffGeoCylinders + 4
	vdiOffGeoSectors     = vdiOffGeoHeads + 4
	vdiOffSectorSize     = vdiOffGeoSectors + 4
	vdiOffUnused1        = vdiOffSectorSize + 4
	vdiOffDiskSize       = vdiOffUnused1 + 4
	vdiOffImageBlockSize = vdiOffDiskSize + 8
	vdiOffBlockExtraSize = vdiOffImageBlockSize + 4
	vdiOffNumberBlocks   = vdiOffBlockExtraSize + 4
	vdiOffNumberAlloced  = vdiOffNumberBlocks + 4
)

type vdiHeader struct {
	magicNumber          uint32
	versionMajor         uint16
	versionMinor         uint16
	fileType             uint32
	imageBlockExtraSize  uint32
	blockDataOffset      uint32
	imageDataOffset      uint32
	diskSize             uint64
	imageBlockSize       uint32
	numberBlocks         uint32
	numberBlocksAlloced  uint32
}

func decodeVDIHeader(buf []byte) vdiHeader {
	return vdiHeader{
		magicNumber:         le32(buf, vdiOffMagic),
		versionMinor:        le16(buf, vdiOffVersionMinor),
		versionMajor:        le16(buf, vdiOffVersionMajor),
		fileType:            le32(buf, vdiOffFileType),
		imageBlockExtraSize: le32(buf, vdiOffBlockExtraSize),
		blockDataOffset:     le32(buf, vdiOffBlockDataOff),
		imageDataOffset:     le32(buf, vdiOffImageDataOff),
		diskSize:            le64(buf, vdiOffDiskSize),
		imageBlockSize:      le32(buf, vdiOffImageBlockSize),
		numberBlocks:        le32(buf, vdiOffNumberBlocks),
		numberBlocksAlloced: le32(buf, vdiOffNumberAlloced),
	}
}

func checkVDIHeader(h vdiHeader) error {
	if h.magicNumber != VDI_MAGIC_NUM {
		return newErr(KindBadFormat, "vdi: bad magic number")
	}
	if h.versionMajor != VDI_VERSION_MAJOR || h.versionMinor != VDI_VERSION_MINOR {
		return newErr(KindBadFormat, "vdi: unsupported version")
	}
	if h.imageBlockExtraSize != 0 {
		return newErr(KindBadFormat, "vdi: non-zero image_block_extra_size unsupported")
	}
	if h.fileType != VDI_TYPE_NORMAL && h.fileType != VDI_TYPE_FIXED_SIZE {
		return newErr(KindBadFormat, "vdi: unsupported file_type")
	}
	return nil
}

// ProbeVDI reports whether filename looks like a VDI 1.1 image, without
// mutating the file or leaving a descriptor open.
func ProbeVDI(filename string) bool {
	bf, err := openBlockFile(filename, false)
	if err != nil {
		return false
	}
	defer bf.Close()

	length, err := bf.Len()
	if err != nil || length < VDI_HEADER_SIZE {
		return false
	}

	buf := make([]byte, VDI_HEADER_SIZE)
	if err := bf.ReadAt(buf, 0); err != nil {
		return false
	}

	return checkVDIHeader(decodeVDIHeader(buf)) == nil
}

// vdiDisk implements Disk over a VirtualBox VDI 1.1 image.
type vdiDisk struct {
	file     *blockFile
	header   vdiHeader
	blockMap []uint32
}

func openVDI(filename string) (Disk, error) {
	bf, err := openBlockFile(filename, true)
	if err != nil {
		return nil, err
	}

	d, err := buildVDIDisk(bf)
	if err != nil {
		bf.Close()
		return nil, err
	}
	return d, nil
}

func buildVDIDisk(bf *blockFile) (*vdiDisk, error) {
	headerBuf := make([]byte, VDI_HEADER_SIZE)
	if err := bf.ReadAt(headerBuf, 0); err != nil {
		return nil, wrapErr(KindBadFormat, "vdi: read header", err)
	}

	header := decodeVDIHeader(headerBuf)
	if err := checkVDIHeader(header); err != nil {
		return nil, err
	}

	mapBytes := uint64(header.numberBlocksAlloced) * 4
	mapBuf := make([]byte, mapBytes)
	if mapBytes > 0 {
		if err := bf.ReadAt(mapBuf, uint64(header.blockDataOffset)); err != nil {
			return nil, wrapErr(KindBadFormat, "vdi: read block map", err)
		}
	}

	blockMap := make([]uint32, header.numberBlocksAlloced)
	for i := range blockMap {
		blockMap[i] = le32(mapBuf, i*4)
	}

	return &vdiDisk{file: bf, header: header, blockMap: blockMap}, nil
}

func (d *vdiDisk) Read(buf []byte, start, length, bufferLength uint64) error {
	length = min64(length, bufferLength)
	if length == 0 {
		return nil
	}

	blockSize := uint64(d.header.imageBlockSize)
	startBlock := start / blockSize
	offset := start % blockSize
	bytesThisBlock := min64(blockSize-offset, length)

	var amountRead uint64
	cursor := buf
	for amountRead < length {
		if int(startBlock) >= len(d.blockMap) {
			return newErr(KindOutOfRange, "vdi: logical block beyond block map")
		}
		physical := d.blockMap[startBlock]
		if physical == VDI_BLOCK_UNALLOCATED || physical == VDI_BLOCK_ZERO {
			return ErrUnallocatedBlock
		}

		fileOff := uint64(physical)*blockSize + offset + uint64(d.header.imageDataOffset)
		if err := d.file.ReadAt(cursor[:bytesThisBlock], fileOff); err != nil {
			return err
		}

		amountRead += bytesThisBlock
		cursor = cursor[bytesThisBlock:]
		offset = 0
		startBlock++
		bytesThisBlock = min64(blockSize, length-amountRead)
	}
	return nil
}

func (d *vdiDisk) Write(buf []byte, start, length, bufferLength uint64) error {
	return ErrNotImplemented
}

func (d *vdiDisk) Length() uint64 {
	return d.header.diskSize
}

func (d *vdiDisk) Close() error {
	return d.file.Close()
}
