package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/psxcorn/exeload/go/models"
)

const (
	PsxHeaderSize = 0x800

	// PsxEntryInvalid is returned as the entry point of an image without a
	// valid header.
	PsxEntryInvalid = 0xffffffff

	psxInitialPC = 0x010
	psxFileSize  = 0x01c
)

var psxMagic = []byte("PS-X EXE")

// PsxHeader is the 0x800-byte PS-EXE header.
type PsxHeader struct {
	ID              [8]byte
	Pad             [8]byte
	InitialPC       uint32
	InitialGP       uint32
	LoadAddress     uint32
	FileSize        uint32 // excluding the header
	Unk0            uint32
	Unk1            uint32
	MemfillStart    uint32
	MemfillSize     uint32
	InitialSPBase   uint32
	InitialSPOffset uint32
	Reserved        [20]byte
	Marker          [0x7b4]byte
}

// MarkerText returns the printable license/region string from the header.
func (h *PsxHeader) MarkerText() string {
	p := h.Marker[:]
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(bytes.TrimSpace(p))
}

// PsxImage is a console executable image.
type PsxImage struct {
	imageBase
}

func newPsxImage(name string, data []byte, logger log.Logger) *PsxImage {
	return &PsxImage{imageBase: newImageBase(name, data, logger)}
}

func (p *PsxImage) Mode() Mode {
	return ModePsx
}

// HasValidHeader checks the magic and minimum length. A file_size field that
// disagrees with the buffer only produces a warning.
func (p *PsxImage) HasValidHeader() bool {
	if len(p.data) < PsxHeaderSize {
		return false
	}
	if !bytes.Equal(p.data[:len(psxMagic)], psxMagic) {
		return false
	}
	fileSize := binary.LittleEndian.Uint32(p.data[psxFileSize:])
	if uint64(fileSize)+PsxHeaderSize > uint64(len(p.data)) {
		level.Warn(p.logger).Log("msg", fmt.Sprintf("incorrect file size in PS-EXE header: %d bytes should not be greater than %d bytes",
			fileSize, len(p.data)-PsxHeaderSize))
	}
	return true
}

// Header decodes the full PS-EXE header.
func (p *PsxImage) Header() (PsxHeader, error) {
	var h PsxHeader
	if !p.HasValidHeader() {
		return h, errors.New("no valid PS-EXE header")
	}
	err := unpackAt(p.data, &h, 0)
	return h, err
}

func (p *PsxImage) EntryPoint() uint32 {
	if !p.HasValidHeader() {
		return PsxEntryInvalid
	}
	return binary.LittleEndian.Uint32(p.data[psxInitialPC:])
}

func (p *PsxImage) TextRange() (start, size uint32) {
	return 0, 0
}

func (p *PsxImage) HasProgramHeaders() bool { return false }
func (p *PsxImage) HasSectionHeaders() bool { return false }
func (p *PsxImage) HasHeaders() bool        { return false }

// Segments returns the text loaded at load_address, or nothing if the header
// is invalid.
func (p *PsxImage) Segments() []models.SegmentData {
	h, err := p.Header()
	if err != nil {
		return nil
	}
	return []models.SegmentData{
		p.segmentData(PsxHeaderSize, uint64(h.LoadAddress), uint64(h.FileSize), uint64(h.FileSize), models.PROT_ALL),
	}
}
