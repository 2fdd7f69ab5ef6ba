package dump

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/lunixbochs/struc"

	"github.com/psxcorn/exeload/go/loader"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	strtab := []byte("\x00.text\x00.shstrtab\x00")
	strOff := uint32(loader.HeaderSize + loader.ProgHeaderSize)
	h := loader.Header32{
		Type: 2, Machine: 8, Entry: 0x1010,
		Phoff: loader.HeaderSize, Phentsize: loader.ProgHeaderSize, Phnum: 1,
		Shoff: strOff + uint32(len(strtab)), Shentsize: loader.SectHeaderSize, Shnum: 3, Shstrndx: 2,
	}
	copy(h.Ident[:], "\x7fELF\x01\x01\x01")
	items := []interface{}{
		&h,
		&loader.ProgHeader{Type: 1, Vaddr: 0x1000, Memsz: 0x100},
	}
	for _, i := range items {
		if err := struc.PackWithOrder(&buf, i, binary.LittleEndian); err != nil {
			t.Fatal(err)
		}
	}
	buf.Write(strtab)
	for _, s := range []loader.SectHeader{
		{},
		{Name: 1, Type: 1, Addr: 0x1000},
		{Name: 7, Type: 3, Offset: strOff, Size: uint32(len(strtab))},
	} {
		if err := struc.PackWithOrder(&buf, &s, binary.LittleEndian); err != nil {
			t.Fatal(err)
		}
	}
	exe, err := loader.New("a.elf", buf.Bytes(), loader.ModeElf, nil)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	Print(&out, exe.(*loader.ElfImage))
	for _, want := range []string{"Program headers at 0x34", "00001000", ".text", ".shstrtab", "Section headers at"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, &out)
		}
	}
}
