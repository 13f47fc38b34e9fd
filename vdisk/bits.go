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

// Fixed-offset, explicit-endianness struct (de)serialization. The original
// C++ source relied on #pragma pack + reinterpret_cast over a raw buffer;
// here each container's header is read/written through named accessor
// helpers instead, so there is no padding or alignment dependency.

import "encoding/binary"

func le32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func le16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off : off+2])
}

func le64(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

func putLe32(buf []byte, off int, val uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], val)
}

func be32(buf []byte, off int) uint32 {
	return binary.BigEndian.Uint32(buf[off : off+4])
}

func be64(buf []byte, off int) uint64 {
	return binary.BigEndian.Uint64(buf[off : off+8])
}

func putBe32(buf []byte, off int, val uint32) {
	binary.BigEndian.PutUint32(buf[off:off+4], val)
}

func putBe64(buf []byte, off int, val uint64) {
	binary.BigEndian.PutUint64(buf[off:off+8], val)
}

// round_up mirrors the teacher's generic helper: smallest multiple of m
// that is >= n. Returns 0 when n or m is 0.
func round_up(n, m uint64) uint64 {
	if n == 0 || m == 0 {
		return 0
	}
	return (n-1)/m*m + m
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// bitmapBytes derives the per-block bitmap length per spec.md §3:
// ceil(ceil(blockSize/512)/8) rounded up to the next 512-byte boundary.
func bitmapBytes(blockSize uint32) uint64 {
	sectors := (uint64(blockSize) + VHD_SECTOR_SIZE - 1) / VHD_SECTOR_SIZE
	bytes := (sectors + 7) / 8
	return round_up(bytes, VHD_SECTOR_SIZE)
}
