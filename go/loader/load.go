package loader

import (
	"bytes"
	"io"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/psxcorn/exeload/go/iso9660"
)

var UnknownMagic = errors.New("Could not identify file magic.")

// MagicSize is how many leading bytes Sniff looks at.
const MagicSize = 8

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, MagicSize)
	n, _ := r.ReadAt(ret, 0)
	return ret[:n]
}

func MatchElf(r io.ReaderAt) bool {
	return bytes.HasPrefix(getMagic(r), elfMagic)
}

func MatchPsx(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), psxMagic)
}

// Sniff picks a mode from the file magic.
func Sniff(r io.ReaderAt) (Mode, error) {
	if MatchElf(r) {
		return ModeElf, nil
	} else if MatchPsx(r) {
		return ModePsx, nil
	}
	return 0, errors.WithStack(UnknownMagic)
}

// New wraps an in-memory image. The size guard applies to ELF images only.
func New(name string, data []byte, mode Mode, logger log.Logger) (Executable, error) {
	if mode != ModePsx {
		if err := CheckSize(int64(len(data))); err != nil {
			return nil, errors.Wrapf(err, "failed to load '%s'", name)
		}
	}
	return newImage(name, data, mode, logger)
}

func newImage(name string, data []byte, mode Mode, logger log.Logger) (Executable, error) {
	switch mode {
	case ModeElf:
		e, err := newElfImage(name, data, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load '%s'", name)
		}
		return e, nil
	case ModePsx:
		return newPsxImage(name, data, logger), nil
	default:
		return nil, errors.Errorf("unknown image mode %d", mode)
	}
}

// Open reads an image from a plain file. PS-EXE images skip the size guard;
// their header carries its own size, checked by HasValidHeader.
func Open(fs afero.Fs, path string, mode Mode, logger log.Logger) (Executable, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ELF from '%s'", path)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ELF from '%s'", path)
	}
	size := stat.Size()
	if mode != ModePsx || size < 0 {
		if size < 0 {
			size = SizeUnknown
		}
		if err := CheckSize(size); err != nil {
			return nil, errors.Wrapf(err, "failed to load '%s'", path)
		}
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read ELF from '%s'", path)
	}
	return newImage(path, data, mode, logger)
}

// OpenISO reads an image from inside a disc image. The size guard applies in
// every mode here.
func OpenISO(img *iso9660.Image, name string, mode Mode, logger log.Logger) (Executable, error) {
	entry, err := img.Locate(name)
	if err != nil {
		return nil, err
	}
	if err := CheckSize(int64(entry.Length)); err != nil {
		return nil, errors.Wrapf(err, "failed to load '%s'", name)
	}
	data, err := img.ReadFile(entry)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ELF from '%s'", name)
	}
	return newImage(name, data, mode, logger)
}
