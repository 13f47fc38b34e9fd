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

import (
	"io"
	"os"
)

// blockFile is the byte I/O backing (component A): positioned reads and
// writes plus a length query and file-extension-by-content, over a single
// exclusively-owned *os.File. It never interprets container format.
type blockFile struct {
	file *os.File
	name string
}

func openBlockFile(name string, writable bool) (*blockFile, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(name, flag, defaultPerm)
	if err != nil {
		return nil, wrapErr(KindIo, "open "+name, err)
	}
	return &blockFile{file: f, name: name}, nil
}

func (b *blockFile) Len() (uint64, error) {
	info, err := b.file.Stat()
	if err != nil {
		return 0, wrapErr(KindIo, "stat "+b.name, err)
	}
	return uint64(info.Size()), nil
}

// ReadAt fills buf completely from the given absolute offset, failing with
// Io on a short read rather than silently returning a partial buffer.
func (b *blockFile) ReadAt(buf []byte, offset uint64) error {
	n, err := b.file.ReadAt(buf, int64(offset))
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return wrapErr(KindIo, "read "+b.name, err)
	}
	if n != len(buf) {
		return wrapErr(KindIo, "short read "+b.name, io.ErrUnexpectedEOF)
	}
	return nil
}

// WriteAt writes buf completely at the given absolute offset.
func (b *blockFile) WriteAt(buf []byte, offset uint64) error {
	n, err := b.file.WriteAt(buf, int64(offset))
	if err != nil {
		return wrapErr(KindIo, "write "+b.name, err)
	}
	if n != len(buf) {
		return wrapErr(KindIo, "short write "+b.name, io.ErrShortWrite)
	}
	return nil
}

// Grow appends n real zero-filled bytes to the end of the file. Per the
// portability note in spec.md §9, a seek-past-end does not reliably
// allocate storage on every platform; this always performs an actual
// write of the new bytes.
func (b *blockFile) Grow(n uint64) error {
	cur, err := b.Len()
	if err != nil {
		return err
	}
	zero := make([]byte, n)
	return b.WriteAt(zero, cur)
}

func (b *blockFile) Close() error {
	return b.file.Close()
}
