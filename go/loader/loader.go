package loader

import (
	"encoding/binary"

	"github.com/go-kit/log"

	"github.com/psxcorn/exeload/go/models"
)

// Mode selects the header grammar for an image. It is fixed at construction.
type Mode int

const (
	ModeElf Mode = iota
	ModePsx
)

func (m Mode) String() string {
	switch m {
	case ModeElf:
		return "elf"
	case ModePsx:
		return "psx"
	default:
		return "unknown"
	}
}

// Executable is the query surface the memory loader depends on. It is
// implemented by *ElfImage and *PsxImage.
type Executable interface {
	Mode() Mode
	Name() string
	Data() []byte
	EntryPoint() uint32
	TextRange() (start, size uint32)
	HasProgramHeaders() bool
	HasSectionHeaders() bool
	HasHeaders() bool
	CRC() uint32
	Segments() []models.SegmentData
}

type imageBase struct {
	name   string
	data   []byte
	logger log.Logger
}

func newImageBase(name string, data []byte, logger log.Logger) imageBase {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return imageBase{name: name, data: data, logger: logger}
}

func (b *imageBase) Name() string {
	return b.name
}

func (b *imageBase) Data() []byte {
	return b.data
}

// CRC xor-folds the image as little-endian 32-bit words. Trailing bytes that
// don't fill a word are ignored. This is a fingerprint, not an integrity check.
func (b *imageBase) CRC() uint32 {
	var crc uint32
	for i := 0; i+4 <= len(b.data); i += 4 {
		crc ^= binary.LittleEndian.Uint32(b.data[i:])
	}
	return crc
}

// segmentData returns a segment whose data is clamped to the image buffer.
func (b *imageBase) segmentData(off, addr, memsz, filesz uint64, prot int) models.SegmentData {
	size := uint64(len(b.data))
	start, end := off, off+filesz
	if start > size {
		start = size
	}
	if end > size {
		end = size
	}
	if end < start {
		end = start
	}
	return models.SegmentData{
		Off:      off,
		Addr:     addr,
		Size:     memsz,
		FileSize: end - start,
		Prot:     prot,
		DataFunc: func() ([]byte, error) {
			return b.data[start:end], nil
		},
	}
}
