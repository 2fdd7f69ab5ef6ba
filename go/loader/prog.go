package loader

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/psxcorn/exeload/go/models"
)

type ProgHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// Contains reports whether addr falls in [Vaddr, Vaddr+Memsz).
func (p *ProgHeader) Contains(addr uint32) bool {
	return p.Vaddr <= addr && uint64(addr) < uint64(p.Vaddr)+uint64(p.Memsz)
}

func (p *ProgHeader) Prot() int {
	var prot int
	if p.Flags&pfR != 0 {
		prot |= models.PROT_READ
	}
	if p.Flags&pfW != 0 {
		prot |= models.PROT_WRITE
	}
	if p.Flags&pfX != 0 {
		prot |= models.PROT_EXEC
	}
	return prot
}

// ProgTable is a view of the program header table: a base offset and count
// into the image buffer. Entries are read at a fixed stride regardless of the
// header's declared entry size.
type ProgTable struct {
	data   []byte
	off    uint64
	count  int
	logger log.Logger
}

// Len returns the declared entry count.
func (t *ProgTable) Len() int {
	return t.count
}

func (t *ProgTable) Offset() uint64 {
	return t.off
}

func (t *ProgTable) Entry(i int) (ProgHeader, error) {
	var p ProgHeader
	if i < 0 || i >= t.count {
		return p, errors.Errorf("program header index %d out of range [0, %d)", i, t.count)
	}
	err := unpackAt(t.data, &p, t.off+uint64(i)*ProgHeaderSize)
	return p, err
}

// Entries returns the table in order. Iteration stops at the first entry that
// would extend past the end of the image.
func (t *ProgTable) Entries() []ProgHeader {
	entries := make([]ProgHeader, 0, t.count)
	for i := 0; i < t.count; i++ {
		p, err := t.Entry(i)
		if err != nil {
			level.Error(t.logger).Log("msg", "program header table truncated", "index", i, "count", t.count, "err", err)
			break
		}
		entries = append(entries, p)
	}
	return entries
}

func progTypeName(typ uint32) string {
	if typ == ptLoad {
		return "load"
	}
	return fmt.Sprintf("unknown %x", typ)
}

func (t *ProgTable) dump() {
	for i, p := range t.Entries() {
		debug := log.With(level.Debug(t.logger), "msg", "Elf32 Program Header", "index", i)
		debug.Log("field", "type", "value", progTypeName(p.Type))
		for _, f := range []struct {
			name  string
			value uint32
		}{
			{"offset", p.Offset},
			{"vaddr", p.Vaddr},
			{"paddr", p.Paddr},
			{"file size", p.Filesz},
			{"mem size", p.Memsz},
			{"flags", p.Flags},
			{"palign", p.Align},
		} {
			debug.Log("field", f.name, "value", fmt.Sprintf("%08x", f.value))
		}
	}
}
