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
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blockdisk/vdisklib/vdisk"
)

// BLOCK_SIZE is the chunk size used to stream a disk image's logical bytes
// out to a flat file; it has no relation to either format's internal block
// size, it's just the copy loop's transfer granularity.
const BLOCK_SIZE = 1 << 20 // 1 MiB

type DdOptions struct {
	InputFile  string
	OutputFile string
}

func newDdCmd() *cobra.Command {

	var opts DdOptions
	var cmd = &cobra.Command{
		Use:   "dd",
		Short: "stream a disk image's logical bytes out to a flat file",
		Long:  "vdiskctl dd <-i inputfile> <-o outputfile>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.InputFile == "" || opts.OutputFile == "" {
				cmd.Help()
				os.Exit(1)
			}
			if err := execDD(opts.InputFile, opts.OutputFile); err != nil {
				fmt.Printf("dd finished with err: %v\n", err)
				return err
			}
			fmt.Println("dd finished successfully")
			return nil
		},
	}
	flags := cmd.Flags()

	flags.StringVarP(&opts.InputFile, "inputfile", "i", "", "specify the input disk image")
	flags.StringVarP(&opts.OutputFile, "outputfile", "o", "", "specify the output file name")

	return cmd
}

// execDD copies inputFile's logical bytes, via vdisk.Open and Read, into a
// new flat outputFile. Unlike the teacher's execDD, the output is never a
// new vdi/vhd container — creating one is an explicit non-goal here — it is
// always a plain file created with os.Create.
func execDD(inputFile, outputFile string) (err error) {
	log := logrus.WithFields(logrus.Fields{"input": inputFile, "output": outputFile})

	in, err := vdisk.Open(inputFile)
	if err != nil {
		log.WithError(err).Error("open input failed")
		return err
	}
	defer in.Close()

	if _, statErr := os.Stat(outputFile); statErr == nil {
		return fmt.Errorf("%s exists", outputFile)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		log.WithError(err).Error("create output failed")
		return err
	}
	defer out.Close()

	size := in.Length()
	buf := make([]byte, BLOCK_SIZE)

	var pos uint64
	for pos < size {
		chunk := uint64(BLOCK_SIZE)
		if pos+chunk > size {
			chunk = size - pos
		}
		if err := in.Read(buf, pos, chunk, chunk); err != nil {
			log.WithError(err).WithField("offset", pos).Error("read failed")
			return err
		}
		if _, err := out.Write(buf[:chunk]); err != nil {
			log.WithError(err).WithField("offset", pos).Error("write failed")
			return err
		}
		pos += chunk
	}

	log.WithField("bytes", size).Info("copy complete")
	return nil
}
