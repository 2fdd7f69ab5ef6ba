// Package iso9660 locates and reads files inside PlayStation disc images, so
// the loader can acquire an executable without extracting it first.
package iso9660

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	SectorSize    = 2048 // user data per sector
	RawSectorSize = 2352 // full CD sector including sync/header/EDC/ECC

	mode1DataOffset = 16 // 12 sync + 4 header
	mode2DataOffset = 24 // 12 sync + 4 header + 8 XA subheader

	firstDescriptor = 16
	maxDescriptors  = 32

	descPrimary    = 1
	descTerminator = 255

	dirRecordSize = 33
	flagDirectory = 0x02
)

var (
	ErrNotFound = errors.New("file not found in disc image")
	ErrNotISO   = errors.New("no ISO-9660 primary volume descriptor")
)

var standardID = []byte("CD001")

type volumeDescriptor struct {
	Type            uint8
	ID              [5]byte
	Version         uint8
	Unused1         uint8
	SystemID        [32]byte
	VolumeID        [32]byte
	Unused2         [8]byte
	VolumeSpace     uint32
	VolumeSpaceBE   [4]byte
	Unused3         [32]byte
	VolumeSet       uint16
	VolumeSetBE     [2]byte
	VolumeSeq       uint16
	VolumeSeqBE     [2]byte
	BlockSize       uint16
	BlockSizeBE     [2]byte
	PathTableSize   uint32
	PathTableSizeBE [4]byte
	PathTableL      uint32
	PathTableLOpt   uint32
	PathTableM      [4]byte
	PathTableMOpt   [4]byte
	RootRecord      [34]byte
}

type dirRecord struct {
	Length       uint8
	ExtAttrLen   uint8
	Extent       uint32
	ExtentBE     [4]byte
	DataLength   uint32
	DataLengthBE [4]byte
	Recorded     [7]byte
	Flags        uint8
	UnitSize     uint8
	GapSize      uint8
	VolumeSeq    uint16
	VolumeSeqBE  [2]byte
	NameLength   uint8
}

// DirEntry is a file or directory record resolved from the disc.
type DirEntry struct {
	Name   string
	Extent uint32
	Length uint32
	Flags  uint8
}

func (d *DirEntry) IsDir() bool {
	return d.Flags&flagDirectory != 0
}

// Image is an opened disc image. It does not own r.
type Image struct {
	r          io.ReaderAt
	sectorSize int64
	dataOffset int64

	VolumeID string
	SystemID string
	Root     DirEntry
}

var layouts = []struct{ sectorSize, dataOffset int64 }{
	{SectorSize, 0},
	{RawSectorSize, mode2DataOffset},
	{RawSectorSize, mode1DataOffset},
}

// Open detects the sector layout (cooked 2048-byte or raw 2352-byte mode 1 /
// mode 2 form 1) and decodes the primary volume descriptor.
func Open(r io.ReaderAt) (*Image, error) {
	for _, l := range layouts {
		img := &Image{r: r, sectorSize: l.sectorSize, dataOffset: l.dataOffset}
		ok, err := img.readPrimary()
		if err != nil {
			return nil, err
		}
		if ok {
			return img, nil
		}
	}
	return nil, errors.WithStack(ErrNotISO)
}

func (img *Image) readPrimary() (bool, error) {
	for i := uint32(0); i < maxDescriptors; i++ {
		sector, err := img.readSector(firstDescriptor + i)
		if err != nil {
			// short image, or wrong layout guess
			return false, nil
		}
		if !bytes.Equal(sector[1:6], standardID) {
			return false, nil
		}
		switch sector[0] {
		case descTerminator:
			return false, nil
		case descPrimary:
			var vd volumeDescriptor
			if err := unpack(sector, &vd); err != nil {
				return false, err
			}
			root, err := parseRecord(vd.RootRecord[:])
			if err != nil {
				return false, errors.Wrap(err, "bad root directory record")
			}
			img.Root = root
			img.VolumeID = strings.TrimRight(string(vd.VolumeID[:]), " \x00")
			img.SystemID = strings.TrimRight(string(vd.SystemID[:]), " \x00")
			return true, nil
		}
	}
	return false, nil
}

func unpack(p []byte, i interface{}) error {
	return struc.UnpackWithOrder(bytes.NewReader(p), i, binary.LittleEndian)
}

func parseRecord(p []byte) (DirEntry, error) {
	if len(p) < dirRecordSize {
		return DirEntry{}, errors.Errorf("directory record truncated at %d bytes", len(p))
	}
	var rec dirRecord
	if err := unpack(p[:dirRecordSize], &rec); err != nil {
		return DirEntry{}, err
	}
	end := dirRecordSize + int(rec.NameLength)
	if int(rec.Length) < end || len(p) < end {
		return DirEntry{}, errors.Errorf("directory record name overruns record (%d > %d)", end, rec.Length)
	}
	return DirEntry{
		Name:   string(p[dirRecordSize:end]),
		Extent: rec.Extent,
		Length: rec.DataLength,
		Flags:  rec.Flags,
	}, nil
}

func (img *Image) readSector(lba uint32) ([]byte, error) {
	p := make([]byte, SectorSize)
	off := int64(lba)*img.sectorSize + img.dataOffset
	if n, err := img.r.ReadAt(p, off); n < len(p) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "failed to read sector %d", lba)
	}
	return p, nil
}

// ReadDir lists the records of a directory, skipping the self and parent
// entries.
func (img *Image) ReadDir(dir *DirEntry) ([]DirEntry, error) {
	if !dir.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir.Name)
	}
	var entries []DirEntry
	sectors := (dir.Length + SectorSize - 1) / SectorSize
	for s := uint32(0); s < sectors; s++ {
		sector, err := img.readSector(dir.Extent + s)
		if err != nil {
			return nil, err
		}
		for pos := 0; pos < SectorSize; {
			length := int(sector[pos])
			// records never span sectors; zero padding fills the rest
			if length == 0 {
				break
			}
			if pos+length > SectorSize {
				return nil, errors.Errorf("directory record at sector %d+%d overruns sector", dir.Extent+s, pos)
			}
			entry, err := parseRecord(sector[pos : pos+length])
			if err != nil {
				return nil, err
			}
			pos += length
			if entry.Name == "\x00" || entry.Name == "\x01" {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// CleanName strips the ";1" version suffix and a trailing dot, and upper-cases.
func CleanName(name string) string {
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	return strings.ToUpper(strings.TrimSuffix(name, "."))
}

func splitPath(path string) []string {
	// cdrom0:\SLUS_200.62;1
	if i := strings.IndexByte(path, ':'); i >= 0 {
		path = path[i+1:]
	}
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// Locate resolves a path like "cdrom0:\DATA\PSX.EXE;1" or "data/psx.exe".
func (img *Image) Locate(path string) (*DirEntry, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "'%s'", path)
	}
	cur := img.Root
	for i, part := range parts {
		entries, err := img.ReadDir(&cur)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list directory for '%s'", path)
		}
		want := CleanName(part)
		found := false
		for _, e := range entries {
			if CleanName(e.Name) == want {
				if i < len(parts)-1 && !e.IsDir() {
					continue
				}
				cur = e
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Wrapf(ErrNotFound, "'%s'", path)
		}
	}
	return &cur, nil
}

// ReadHead reads up to n bytes from the start of a file, never more than one
// sector. It lets callers sniff a file before trusting its recorded length.
func (img *Image) ReadHead(entry *DirEntry, n int) ([]byte, error) {
	if entry.IsDir() {
		return nil, errors.Errorf("%s is a directory", entry.Name)
	}
	if n > SectorSize {
		n = SectorSize
	}
	if uint64(n) > uint64(entry.Length) {
		n = int(entry.Length)
	}
	if n <= 0 {
		return nil, nil
	}
	sector, err := img.readSector(entry.Extent)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", entry.Name)
	}
	return sector[:n], nil
}

// ReadFile reads the full extent of a file entry.
func (img *Image) ReadFile(entry *DirEntry) ([]byte, error) {
	if entry.IsDir() {
		return nil, errors.Errorf("%s is a directory", entry.Name)
	}
	data := make([]byte, entry.Length)
	if img.sectorSize == SectorSize {
		off := int64(entry.Extent) * SectorSize
		if n, err := img.r.ReadAt(data, off); n < len(data) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "failed to read '%s'", entry.Name)
		}
		return data, nil
	}
	for pos, lba := uint32(0), entry.Extent; pos < entry.Length; pos, lba = pos+SectorSize, lba+1 {
		sector, err := img.readSector(lba)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read '%s'", entry.Name)
		}
		copy(data[pos:], sector)
	}
	return data, nil
}
