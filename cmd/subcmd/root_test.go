package subcmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCommand_HasInfoAndDd(t *testing.T) {
	root := NewCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["info"])
	assert.True(t, names["dd"])
}

func TestInfoDisk_UnknownFormatReturnsError(t *testing.T) {
	err := InfoDisk("does-not-exist-anywhere.img")
	assert.Error(t, err)
}

func TestExecDD_FailsOnMissingInput(t *testing.T) {
	dir := t.TempDir()
	outPath := dir + "/out.raw"

	err := execDD("does-not-exist-anywhere.vdi", outPath)
	assert.Error(t, err)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "output file must not be created when input open fails")
}
