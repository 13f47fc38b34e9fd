package subcmd

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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blockdisk/vdisklib/vdisk"
)

type InfoOptions struct {
	FilePath string
}

func newInfoCmd() *cobra.Command {

	var opts InfoOptions
	var cmd = &cobra.Command{
		Use:   "info",
		Short: "print the format and logical length of the specified disk image",
		Long:  "vdiskctl info <-f filename>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.FilePath == "" {
				cmd.Help()
				os.Exit(1)
			}
			return InfoDisk(opts.FilePath)
		},
	}
	flags := cmd.Flags()

	flags.StringVarP(&opts.FilePath, "filename", "f", "", "specify the file name")
	return cmd
}

// formatName re-probes filename purely for display: vdisk.Open already
// performed the same probe internally to pick an accessor.
func formatName(filename string) string {
	if vdisk.ProbeVDI(filename) {
		return "vdi"
	}
	if vdisk.ProbeVHD(filename) {
		return "vhd"
	}
	return "unknown"
}

func InfoDisk(filename string) error {
	log := logrus.WithField("file", filename)

	d, err := vdisk.Open(filename)
	if err != nil {
		log.WithError(err).Error("open failed")
		return err
	}
	defer d.Close()

	log.WithFields(logrus.Fields{
		"format": formatName(filename),
		"length": d.Length(),
	}).Info("opened disk image")

	return nil
}
