package models

import (
	"bytes"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
)

var levelColors = []struct {
	key   []byte
	color string
}{
	{[]byte("level=error"), ansi.ColorCode("red+b")},
	{[]byte("level=warn"), ansi.ColorCode("yellow")},
	{[]byte("level=debug"), ansi.ColorCode("black+h")},
}

// ColorWriter colors each logfmt record by its level. go-kit loggers emit one
// record per Write call, so no line buffering is needed.
type ColorWriter struct {
	out io.Writer
}

func NewColorWriter(out io.Writer) *ColorWriter {
	return &ColorWriter{out: out}
}

func (c *ColorWriter) Write(p []byte) (int, error) {
	for _, lc := range levelColors {
		if bytes.Contains(p, lc.key) {
			line := bytes.TrimRight(p, "\n")
			buf := make([]byte, 0, len(p)+len(lc.color)+len(ansi.Reset)+1)
			buf = append(buf, lc.color...)
			buf = append(buf, line...)
			buf = append(buf, ansi.Reset...)
			buf = append(buf, '\n')
			if _, err := c.out.Write(buf); err != nil {
				return 0, err
			}
			return len(p), nil
		}
	}
	return c.out.Write(p)
}

// IsTerminal reports whether w is a terminal we can color.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// LogOutput wraps w for diagnostic output, coloring it when asked to.
func LogOutput(w io.Writer, color bool) io.Writer {
	if !color {
		return w
	}
	if f, ok := w.(*os.File); ok {
		w = colorable.NewColorable(f)
	}
	return NewColorWriter(w)
}
