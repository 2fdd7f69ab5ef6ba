package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-kit/log"
	"github.com/lunixbochs/struc"
)

// header field offsets, for patching built images
const (
	offEntry     = 0x18
	offPhoff     = 0x1c
	offShoff     = 0x20
	offPhentsize = 0x2a
	offPhnum     = 0x2c
	offShstrndx  = 0x32
)

func pack(t *testing.T, buf *bytes.Buffer, i interface{}) {
	if err := struc.PackWithOrder(buf, i, binary.LittleEndian); err != nil {
		t.Fatal(err)
	}
}

// strtabOffset is where buildElf places the string table.
func strtabOffset(nprogs int) uint32 {
	return uint32(HeaderSize + nprogs*ProgHeaderSize)
}

// buildElf lays out header, program table, string table, section table and
// body in that order.
func buildElf(t *testing.T, h Header32, progs []ProgHeader, sects []SectHeader, strtab []byte, body []byte) []byte {
	var buf bytes.Buffer
	copy(h.Ident[:], []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	h.Ehsize = HeaderSize
	if len(progs) > 0 {
		h.Phoff = HeaderSize
		h.Phentsize = ProgHeaderSize
		h.Phnum = uint16(len(progs))
	}
	if len(sects) > 0 {
		h.Shoff = strtabOffset(len(progs)) + uint32(len(strtab))
		h.Shentsize = SectHeaderSize
		h.Shnum = uint16(len(sects))
	}
	pack(t, &buf, &h)
	for i := range progs {
		pack(t, &buf, &progs[i])
	}
	buf.Write(strtab)
	for i := range sects {
		pack(t, &buf, &sects[i])
	}
	buf.Write(body)
	return buf.Bytes()
}

// sampleElf is a mips executable with one loadable segment and three
// sections: null, .text and .shstrtab.
func sampleElf(t *testing.T) []byte {
	strtab := []byte("\x00.text\x00.shstrtab\x00")
	h := Header32{Type: 2, Machine: 8, Version: 1, Entry: 0x100100, Shstrndx: 2}
	progs := []ProgHeader{
		{Type: ptLoad, Offset: 0x200, Vaddr: 0x100000, Paddr: 0x100000, Filesz: 0x40, Memsz: 0x1000, Flags: pfR | pfX, Align: 0x10},
	}
	sects := []SectHeader{
		{},
		{Name: 1, Type: 1, Flags: 6, Addr: 0x100000, Offset: 0x200, Size: 0x40, Addralign: 0x10},
		{Name: 7, Type: 3, Offset: strtabOffset(1), Size: uint32(len(strtab)), Addralign: 1},
	}
	head := buildElf(t, h, progs, sects, strtab, nil)
	img := make([]byte, 0x240)
	copy(img, head)
	for i := 0x200; i < 0x240; i++ {
		img[i] = byte(i)
	}
	return img
}

func newLogger() (*bytes.Buffer, log.Logger) {
	var buf bytes.Buffer
	return &buf, log.NewLogfmtLogger(&buf)
}

func mustElf(t *testing.T, data []byte, logger log.Logger) *ElfImage {
	exe, err := New("test.elf", data, ModeElf, logger)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := exe.(*ElfImage)
	if !ok {
		t.Fatalf("expected *ElfImage, got %T", exe)
	}
	return e
}

func putU32(p []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(p[off:], v)
}

func putU16(p []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(p[off:], v)
}
