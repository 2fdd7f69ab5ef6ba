package info

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/psxcorn/exeload/go/cmd"
	"github.com/psxcorn/exeload/go/loader"
)

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Print writes a readable summary of an image.
func Print(w io.Writer, exe loader.Executable) {
	s := loader.Describe(exe)
	fmt.Fprintf(w, "file:      %s\n", s.Name)
	fmt.Fprintf(w, "format:    %s\n", s.Mode)
	fmt.Fprintf(w, "size:      %s (%d bytes)\n", humanize.IBytes(uint64(s.Size)), s.Size)
	fmt.Fprintf(w, "crc:       %08X\n", s.CRC)
	fmt.Fprintf(w, "entry:     %08x\n", s.Entry)
	switch s.Mode {
	case loader.ModeElf:
		fmt.Fprintf(w, "machine:   %s\n", loader.MachineName(s.Machine))
		fmt.Fprintf(w, "text:      %08x + %08x\n", s.TextStart, s.TextSize)
		fmt.Fprintf(w, "programs:  %d (%s)\n", s.Programs, yesno(s.HasProgramHeaders))
		fmt.Fprintf(w, "sections:  %d (%s)\n", s.Sections, yesno(s.HasSectionHeaders))
	case loader.ModePsx:
		fmt.Fprintf(w, "valid:     %s\n", yesno(s.ValidHeader))
		if s.ValidHeader {
			fmt.Fprintf(w, "load:      %08x + %s\n", s.LoadAddress, humanize.IBytes(uint64(s.FileSize)))
			fmt.Fprintf(w, "stack:     %08x + %08x\n", s.StackBase, s.StackOffset)
			if s.Marker != "" {
				fmt.Fprintf(w, "marker:    %s\n", s.Marker)
			}
		}
	}
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

func init() { cmd.Register("info", "summarize an executable image", Main) }
