package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/psxcorn/exeload/go/models"
)

const (
	HeaderSize     = 52
	ProgHeaderSize = 32
	SectHeaderSize = 40

	// shstrndx sentinel for an index stored out of line
	shnXIndex = 0xffff

	ptLoad = 1

	pfX = 1
	pfW = 2
	pfR = 4
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

// Header32 is the ELF32 file header at offset 0.
type Header32 struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

var elfTypes = map[uint16]string{
	0: "no file type",
	1: "relocatable",
	2: "executable",
}

var elfMachines = map[uint16]string{
	1: "AT&T WE 32100",
	2: "SPARC",
	3: "Intel 80386",
	4: "Motorola 68000",
	5: "Motorola 88000",
	7: "Intel 80860",
	8: "mips_rs3000",
}

// unpackAt decodes i from p at the given offset, refusing to read past the
// end of p.
func unpackAt(p []byte, i interface{}, at uint64) error {
	size, err := struc.Sizeof(i)
	if err != nil {
		return err
	}
	end := at + uint64(size)
	if end > uint64(len(p)) {
		return errors.Errorf("%d bytes at offset %#x overrun image of %d bytes", size, at, len(p))
	}
	return struc.UnpackWithOrder(bytes.NewReader(p[at:end]), i, binary.LittleEndian)
}

// ElfImage is a standard executable image. Its program and section tables are
// optional; each is absent when the header points outside the buffer.
type ElfImage struct {
	imageBase
	header Header32
	progs  *ProgTable
	sects  *SectTable
}

func newElfImage(name string, data []byte, logger log.Logger) (*ElfImage, error) {
	e := &ElfImage{imageBase: newImageBase(name, data, logger)}
	if err := unpackAt(data, &e.header, 0); err != nil {
		return nil, errors.Wrap(err, "failed to decode ELF header")
	}
	e.resolve()
	return e, nil
}

func (e *ElfImage) resolve() {
	h := &e.header
	size := uint64(len(e.data))
	level.Debug(e.logger).Log("msg", "initializing ELF", "name", e.name, "bytes", size)

	if h.Phnum > 0 {
		if uint64(h.Phoff)+ProgHeaderSize <= size {
			e.progs = &ProgTable{data: e.data, off: uint64(h.Phoff), count: int(h.Phnum), logger: e.logger}
		} else {
			level.Error(e.logger).Log("msg", fmt.Sprintf("program header offset %d is larger than file size %d", h.Phoff, size))
		}
	}
	if h.Shnum > 0 {
		if uint64(h.Shoff)+SectHeaderSize <= size {
			e.sects = &SectTable{data: e.data, off: uint64(h.Shoff), count: int(h.Shnum), strndx: h.Shstrndx, logger: e.logger}
		} else {
			level.Error(e.logger).Log("msg", fmt.Sprintf("section header offset %d is larger than file size %d", h.Shoff, size))
		}
	}
	if h.Shnum > 0 && h.Shentsize != SectHeaderSize {
		level.Error(e.logger).Log("msg", "size of section headers is not standard", "shentsize", h.Shentsize)
	}
	if h.Phnum > 0 && h.Phentsize != ProgHeaderSize {
		level.Error(e.logger).Log("msg", "size of program headers is not standard", "phentsize", h.Phentsize)
	}
	e.logHeader()
}

func (e *ElfImage) logHeader() {
	h := &e.header
	debug := log.With(level.Debug(e.logger), "msg", "elf header")
	if name, ok := elfTypes[h.Type]; ok {
		debug.Log("field", "type", "value", name)
	} else {
		debug.Log("field", "type", "value", fmt.Sprintf("unknown = %x", h.Type))
	}
	if name, ok := elfMachines[h.Machine]; ok {
		debug.Log("field", "machine", "value", name)
	} else {
		debug.Log("field", "machine", "value", fmt.Sprintf("unknown = %x", h.Machine))
	}
	debug.Log("field", "version", "value", h.Version)
	for _, f := range []struct {
		name  string
		value uint32
	}{
		{"entry", h.Entry},
		{"flags", h.Flags},
		{"eh size", uint32(h.Ehsize)},
		{"ph off", h.Phoff},
		{"ph entsiz", uint32(h.Phentsize)},
		{"ph num", uint32(h.Phnum)},
		{"sh off", h.Shoff},
		{"sh entsiz", uint32(h.Shentsize)},
		{"sh num", uint32(h.Shnum)},
		{"sh strndx", uint32(h.Shstrndx)},
	} {
		debug.Log("field", f.name, "value", fmt.Sprintf("%08x", f.value))
	}
}

func (e *ElfImage) Mode() Mode {
	return ModeElf
}

func (e *ElfImage) Header() Header32 {
	return e.header
}

func (e *ElfImage) EntryPoint() uint32 {
	return e.header.Entry
}

// TextRange returns the first segment, in table order, containing the entry
// point. It returns (0, 0) when there is no such segment.
func (e *ElfImage) TextRange() (start, size uint32) {
	if e.progs == nil {
		return 0, 0
	}
	for _, p := range e.progs.Entries() {
		if p.Contains(e.header.Entry) {
			return p.Vaddr, p.Memsz
		}
	}
	return 0, 0
}

// Programs returns the program header table, or nil if absent.
func (e *ElfImage) Programs() *ProgTable {
	return e.progs
}

// Sections returns the section header table, or nil if absent.
func (e *ElfImage) Sections() *SectTable {
	return e.sects
}

func (e *ElfImage) HasProgramHeaders() bool {
	return e.progs != nil
}

func (e *ElfImage) HasSectionHeaders() bool {
	return e.sects != nil
}

func (e *ElfImage) HasHeaders() bool {
	return e.HasProgramHeaders() && e.HasSectionHeaders()
}

// Section finds a section by its resolved name.
func (e *ElfImage) Section(name string) (SectHeader, bool) {
	if e.sects == nil {
		return SectHeader{}, false
	}
	for _, s := range e.sects.Entries() {
		if e.sects.Name(s) == name {
			return s, true
		}
	}
	return SectHeader{}, false
}

// Segments returns the loadable segments. Overlapping segments are reported
// but kept; the loader maps them in table order.
func (e *ElfImage) Segments() []models.SegmentData {
	if e.progs == nil {
		return nil
	}
	var segs []models.SegmentData
	var spans []models.Segment
	for _, p := range e.progs.Entries() {
		if p.Type != ptLoad {
			continue
		}
		span := models.Segment{Start: uint64(p.Vaddr), End: uint64(p.Vaddr) + uint64(p.Memsz)}
		for _, prev := range spans {
			if span.Overlaps(&prev) {
				level.Warn(e.logger).Log("msg", "loadable segments overlap",
					"segment", fmt.Sprintf("%08x-%08x", span.Start, span.End),
					"previous", fmt.Sprintf("%08x-%08x", prev.Start, prev.End))
			}
		}
		spans = append(spans, span)
		segs = append(segs, e.segmentData(uint64(p.Offset), uint64(p.Vaddr), uint64(p.Memsz), uint64(p.Filesz), p.Prot()))
	}
	return segs
}

// DumpHeaders logs every program and section header at debug level.
func (e *ElfImage) DumpHeaders() {
	if e.progs != nil {
		e.progs.dump()
	}
	if e.sects != nil && uint64(e.header.Shoff) <= uint64(len(e.data)) {
		e.sects.dump()
	}
}
