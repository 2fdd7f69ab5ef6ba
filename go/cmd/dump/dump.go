package dump

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/psxcorn/exeload/go/cmd"
	"github.com/psxcorn/exeload/go/loader"
)

func hex(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

// Print writes the program and section header tables of an ELF image.
func Print(w io.Writer, e *loader.ElfImage) {
	if progs := e.Programs(); progs != nil {
		fmt.Fprintf(w, "Program headers at %#x:\n", progs.Offset())
		table := newTable(w, []string{"#", "type", "offset", "vaddr", "paddr", "filesz", "memsz", "flags", "align"})
		for i, p := range progs.Entries() {
			table.Append([]string{fmt.Sprint(i), hex(p.Type), hex(p.Offset), hex(p.Vaddr), hex(p.Paddr), hex(p.Filesz), hex(p.Memsz), hex(p.Flags), hex(p.Align)})
		}
		table.Render()
	} else {
		fmt.Fprintln(w, "No program headers.")
	}
	if sects := e.Sections(); sects != nil {
		fmt.Fprintf(w, "Section headers at %#x:\n", sects.Offset())
		table := newTable(w, []string{"#", "name", "type", "flags", "addr", "offset", "size", "link", "info", "align", "entsize"})
		for i, s := range sects.Entries() {
			table.Append([]string{fmt.Sprint(i), sects.Name(s), hex(s.Type), hex(s.Flags), hex(s.Addr), hex(s.Offset), hex(s.Size), hex(s.Link), hex(s.Info), hex(s.Addralign), hex(s.Entsize)})
		}
		table.Render()
	} else {
		fmt.Fprintln(w, "No section headers.")
	}
}

func Main(args []string, stdout, stderr io.Writer) int {
	c := cmd.NewImageCmd()
	c.Stdout, c.Stderr = stdout, stderr
	c.RunImage = func(exe loader.Executable) error {
		e, ok := exe.(*loader.ElfImage)
		if !ok {
			fmt.Fprintf(c.Stdout, "%s is a %s image and has no header tables.\n", exe.Name(), exe.Mode())
			return nil
		}
		e.DumpHeaders()
		Print(c.Stdout, e)
		return nil
	}
	return c.Run(args)
}

func init() { cmd.Register("dump", "print program and section header tables", Main) }
