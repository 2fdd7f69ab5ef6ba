package loader

import (
	"bytes"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type SectHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

var sectTypes = map[uint32]string{
	0x0: "null",
	0x1: "progbits",
	0x2: "symtab",
	0x3: "strtab",
	0x4: "rela",
	0x8: "no bits",
	0x9: "rel",
}

// SectTable is a view of the section header table, with the same stride
// contract as ProgTable.
type SectTable struct {
	data   []byte
	off    uint64
	count  int
	strndx uint16
	logger log.Logger
}

func (t *SectTable) Len() int {
	return t.count
}

func (t *SectTable) Offset() uint64 {
	return t.off
}

func (t *SectTable) Entry(i int) (SectHeader, error) {
	var s SectHeader
	if i < 0 || i >= t.count {
		return s, errors.Errorf("section header index %d out of range [0, %d)", i, t.count)
	}
	err := unpackAt(t.data, &s, t.off+uint64(i)*SectHeaderSize)
	return s, err
}

func (t *SectTable) Entries() []SectHeader {
	entries := make([]SectHeader, 0, t.count)
	for i := 0; i < t.count; i++ {
		s, err := t.Entry(i)
		if err != nil {
			level.Error(t.logger).Log("msg", "section header table truncated", "index", i, "count", t.count, "err", err)
			break
		}
		entries = append(entries, s)
	}
	return entries
}

// NameTable returns the file offset of the section name string table.
func (t *SectTable) NameTable() (uint64, error) {
	idx := int(t.strndx)
	if t.strndx == shnXIndex {
		idx = 0
	}
	s, err := t.Entry(idx)
	if err != nil {
		return 0, errors.Wrap(err, "section name table")
	}
	return uint64(s.Offset), nil
}

// Name resolves a section's name. Any offset that lands outside the image
// yields an empty name.
func (t *SectTable) Name(s SectHeader) string {
	names, err := t.NameTable()
	if err != nil {
		level.Warn(t.logger).Log("msg", "section name table unavailable", "err", err)
		return ""
	}
	start := names + uint64(s.Name)
	if start >= uint64(len(t.data)) {
		level.Warn(t.logger).Log("msg", "section name out of bounds", "name_table", fmt.Sprintf("%08x", names), "name", fmt.Sprintf("%08x", s.Name), "size", len(t.data))
		return ""
	}
	p := t.data[start:]
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

func (t *SectTable) dump() {
	for i, s := range t.Entries() {
		debug := log.With(level.Debug(t.logger), "msg", fmt.Sprintf("ELF32 Section Header [%x] %s", i, t.Name(s)))
		if name, ok := sectTypes[s.Type]; ok {
			debug.Log("field", "type", "value", name)
		} else {
			debug.Log("field", "type", "value", fmt.Sprintf("unknown %08x", s.Type))
		}
		for _, f := range []struct {
			name  string
			value uint32
		}{
			{"flags", s.Flags},
			{"addr", s.Addr},
			{"offset", s.Offset},
			{"size", s.Size},
			{"link", s.Link},
			{"info", s.Info},
			{"addralign", s.Addralign},
			{"entsize", s.Entsize},
		} {
			debug.Log("field", f.name, "value", fmt.Sprintf("%08x", f.value))
		}
	}
}
