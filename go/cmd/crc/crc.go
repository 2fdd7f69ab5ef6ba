package crc

import (
	"fmt"
	"io"

	"github.com/psxcorn/exeload/go/cmd"
	"github.com/psxcorn/exeload/go/loader"
)

// Print writes the image fingerprint as eight upper-case hex digits.
func Print(w io.Writer, exe loader.Executable) {
	fmt.Fprintf(w, "%08X\n", exe.CRC())
}

func Main(args []string, stdout, stderr io.Writer) int {
	c := cmd.NewImageCmd()
	c.Stdout, c.Stderr = stdout, stderr
	c.RunImage = func(exe loader.Executable) error {
		Print(c.Stdout, exe)
		return nil
	}
	return c.Run(args)
}

func init() { cmd.Register("crc", "print the image checksum", Main) }
