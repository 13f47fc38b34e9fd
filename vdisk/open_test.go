package vdisk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpen_DispatchesToVHDWhenVDIProbeFails(t *testing.T) {
	path := buildVHDFixedFixture(t, 4096, 0x33)

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(4096), d.Length())
}

func TestOpen_DispatchesToVDIFirst(t *testing.T) {
	path := buildVDIFixture(t, 1<<20, 10*(1<<20), true, 0x44)

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(10*(1<<20)), d.Length())
}

func TestOpen_UnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	assert.NoError(t, os.WriteFile(path, make([]byte, 4096), 0644))

	_, err := Open(path)
	assert.True(t, IsUnknownFormat(err))
}

func TestOpen_ReadClampsToBufferLength(t *testing.T) {
	path := buildVHDFixedFixture(t, 4096, 0x55)

	d, err := Open(path)
	assert.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 100)
	assert.NoError(t, d.Read(buf, 0, 10000, 100))
	for _, b := range buf {
		assert.Equal(t, byte(0x55), b)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.img"))
	assert.Error(t, err)
}

// A VDI file whose probe (read-only open) succeeds but whose construction
// (read-write open) fails with Io must still fall through to the VHD
// candidate, not be returned as-is. Since the file is not a valid VHD
// either, dispatch exhausts both candidates and reports UnknownFormat.
func TestOpen_VDIConstructionIoFallsThroughToUnknownFormat(t *testing.T) {
	path := buildVDIFixture(t, 1<<20, 10*(1<<20), true, 0x66)
	assert.True(t, ProbeVDI(path))

	assert.NoError(t, os.Chmod(path, 0444))
	defer os.Chmod(path, 0644)

	_, err := openVDI(path)
	if !IsIo(err) {
		t.Skip("openVDI did not fail with Io under this user's privileges (e.g. running as root)")
	}

	_, err = Open(path)
	assert.True(t, IsUnknownFormat(err), "expected UnknownFormat, got %v", err)
}

// A VHD file with no VDI candidate whose footer probes fine but whose
// dynamic header fails validation must collapse to UnknownFormat, not leak
// the internal BadFormat from openVHD: VHD is the last candidate and there
// is nothing left to fall through to.
func TestOpen_VHDConstructionBadFormatCollapsesToUnknownFormat(t *testing.T) {
	path, _ := buildVHDDynamicFixture(t, 1024, 4, 0x77)
	assert.True(t, ProbeVHD(path))
	assert.False(t, ProbeVDI(path))

	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	dhOff := VHD_FOOTER_SIZE
	copy(raw[dhOff:dhOff+8], "garbage!")
	assert.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = openVHD(path)
	assert.True(t, IsBadFormat(err))

	_, err = Open(path)
	assert.True(t, IsUnknownFormat(err), "expected UnknownFormat, got %v", err)
}
