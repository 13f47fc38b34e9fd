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

// Disk is the uniform contract (component E) consumed by callers and
// implemented by both the VDI and VHD accessors. No run-time type
// hierarchy is exposed beyond this interface: Open returns a Disk and the
// caller never needs to know which concrete format backs it.
type Disk interface {
	// Read fills buf[:min(length, bufferLength)] starting at the logical
	// offset start. length and bufferLength are both honored independently
	// of len(buf); callers typically pass len(buf) for both.
	Read(buf []byte, start, length, bufferLength uint64) error

	// Write stores buf[:min(length, bufferLength)] at the logical offset
	// start. Returns NotImplemented if the concrete format is read-only.
	Write(buf []byte, start, length, bufferLength uint64) error

	// Length returns the logical size of the disk, in bytes.
	Length() uint64

	// Close releases the underlying file descriptor. Deterministic,
	// idempotent is not guaranteed (matches the teacher's bdrv_close,
	// which assumes a single call).
	Close() error
}

// Open probes filename against each known container format in a fixed
// order (VDI first, then VHD) and returns the first accessor whose probe
// and construction both succeed. Probing never mutates the file and never
// leaks a file descriptor on a failed candidate.
func Open(filename string) (Disk, error) {
	if ProbeVDI(filename) {
		d, err := openVDI(filename)
		if err == nil {
			return d, nil
		}
		// Any construction failure after a passing probe, BadFormat or
		// Io alike, falls through to the next candidate rather than
		// giving up — dispatch is a linear fold over format candidates,
		// per §7 and §9.
	}

	if ProbeVHD(filename) {
		d, err := openVHD(filename)
		if err == nil {
			return d, nil
		}
		// VHD is the last candidate: an Io failure is reported as-is,
		// but anything else (BadFormat, Corrupt, ...) has no further
		// candidate to try and collapses to UnknownFormat rather than
		// leaking an internal error kind.
		if IsIo(err) {
			return nil, err
		}
		return nil, newErr(KindUnknownFormat, filename)
	}

	return nil, newErr(KindUnknownFormat, filename)
}
