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

// VDI 1.1 constants.
const (
	VDI_MAGIC_NUM       = uint32(0xbeda107f)
	VDI_VERSION_MAJOR   = uint16(1)
	VDI_VERSION_MINOR   = uint16(1)
	VDI_TYPE_NORMAL     = uint32(1)
	VDI_TYPE_FIXED_SIZE = uint32(2)

	VDI_PREHEADER_SIZE = 72 // info text (64) + magic (4) + version (4)
	VDI_HEADER_SIZE    = 400

	VDI_BLOCK_UNALLOCATED = uint32(0xFFFFFFFF)
	VDI_BLOCK_ZERO        = uint32(0xFFFFFFFE)
)

// VHD constants.
const (
	VHD_COOKIE           = "conectix"
	VHD_DYNAMIC_COOKIE   = "cxsparse"
	VHD_SUPPORTED_VERSION = uint32(0x00010000)
	VHD_FEATURES          = uint32(2)

	VHD_DISK_TYPE_FIXED   = uint32(2)
	VHD_DISK_TYPE_DYNAMIC = uint32(3)

	VHD_NO_DATA_OFFSET = uint64(0xFFFFFFFFFFFFFFFF)
	VHD_BAT_UNUSED     = uint32(0xFFFFFFFF)

	VHD_FOOTER_SIZE      = 512
	VHD_DYN_HEADER_SIZE  = 1024
	VHD_SECTOR_SIZE      = 512
)

const (
	defaultPerm = 0644
)
