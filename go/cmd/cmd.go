package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/psxcorn/exeload/go/iso9660"
	"github.com/psxcorn/exeload/go/loader"
	"github.com/psxcorn/exeload/go/models"
)

type ImageCmd struct {
	Config *models.Config

	SetupFlags func() error
	RunImage   func(exe loader.Executable) error

	Fs     afero.Fs
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
	Flags  *flag.FlagSet
}

func NewImageCmd() *ImageCmd {
	return &ImageCmd{
		Fs:     afero.NewOsFs(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Flags:  flag.NewFlagSet("cli", flag.ExitOnError),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err, and in verbose mode the stack recorded where it was
// first wrapped.
func (c *ImageCmd) PrintError(err error) {
	fmt.Fprintf(c.Stderr, "Error: %s\n", err)
	if c.Config == nil || !c.Config.Verbose {
		return
	}
	// the innermost stack is the one closest to the failure
	var st errors.StackTrace
	for e := err; e != nil; {
		if t, ok := e.(stackTracer); ok {
			st = t.StackTrace()
		}
		cause, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = cause.Cause()
	}
	if len(st) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.Stderr)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, f := range st {
		fn := fmt.Sprintf("%n", f)
		table.Append([]string{fmt.Sprintf("%s:%d", f, f), fn + "()"})
		if fn == "main" {
			break
		}
	}
	table.Render()
}

func parseMode(s string) (loader.Mode, bool, error) {
	switch s {
	case "auto", "":
		return 0, true, nil
	case "elf":
		return loader.ModeElf, false, nil
	case "psx":
		return loader.ModePsx, false, nil
	}
	return 0, false, errors.Errorf("%s is not a valid mode ('auto', 'elf' or 'psx')", s)
}

// Load acquires the image named on the command line, from a plain file or
// from inside the configured disc image. An explicit mode wins over the
// configured psx default.
func (c *ImageCmd) Load(name string, mode string) (loader.Executable, error) {
	m, auto, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	if auto && c.Config.Psx {
		m, auto = loader.ModePsx, false
	}
	if c.Config.Container == "" {
		path := c.Config.PrefixPath(name)
		if auto {
			if m, err = c.sniffFile(path); err != nil {
				return nil, err
			}
		}
		return loader.Open(c.Fs, path, m, c.Logger)
	}

	disc := c.Config.PrefixPath(c.Config.Container)
	f, err := c.Fs.Open(disc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open disc image '%s'", disc)
	}
	defer f.Close()
	img, err := iso9660.Open(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open disc image '%s'", disc)
	}
	if auto {
		if m, err = sniffEntry(img, name); err != nil {
			return nil, err
		}
	}
	return loader.OpenISO(img, name, m, c.Logger)
}

// sniffEntry guards the recorded length, then reads only the magic.
func sniffEntry(img *iso9660.Image, name string) (loader.Mode, error) {
	entry, err := img.Locate(name)
	if err != nil {
		return 0, err
	}
	if err := loader.CheckSize(int64(entry.Length)); err != nil {
		return 0, errors.Wrapf(err, "failed to load '%s'", name)
	}
	head, err := img.ReadHead(entry, loader.MagicSize)
	if err != nil {
		return 0, err
	}
	m, err := loader.Sniff(bytes.NewReader(head))
	if err != nil {
		return 0, errors.Wrapf(err, "'%s'", name)
	}
	return m, nil
}

func (c *ImageCmd) sniffFile(path string) (loader.Mode, error) {
	f, err := c.Fs.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read ELF from '%s'", path)
	}
	defer f.Close()
	m, err := loader.Sniff(f)
	if err != nil {
		return 0, errors.Wrapf(err, "'%s'", path)
	}
	return m, nil
}

func (c *ImageCmd) makeLogger() log.Logger {
	out := models.LogOutput(c.Config.Out(), c.Config.Color)
	logger := log.NewLogfmtLogger(log.NewSyncWriter(out))
	if c.Config.Verbose {
		return level.NewFilter(logger, level.AllowDebug())
	}
	return level.NewFilter(logger, level.AllowInfo())
}

func (c *ImageCmd) Run(argv []string) int {
	if c.Config == nil {
		config, err := models.LoadConfig(models.Config{Color: models.IsTerminal(c.Stderr)})
		if err != nil {
			fmt.Fprintf(c.Stderr, "warning: %s\n", err)
			config = &models.Config{}
		}
		c.Config = config
	}
	if c.Config.Output == nil {
		c.Config.Output = c.Stderr
	}

	fs := c.Flags
	fs.SetOutput(c.Stderr)
	mode := fs.String("mode", "auto", "image format: 'auto', 'elf' or 'psx'")
	psx := fs.Bool("psx", c.Config.Psx, "shorthand for -mode psx")
	iso := fs.String("iso", c.Config.Container, "read <file> from inside this disc image")
	prefix := fs.String("prefix", c.Config.LoadPrefix, "root absolute paths under this directory")
	verbose := fs.Bool("v", c.Config.Verbose, "verbose output (header field diagnostics)")
	color := fs.Bool("color", c.Config.Color, "color diagnostics")
	outfile := fs.String("o", "", "redirect diagnostics to file (default stderr)")

	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: %s [options] <file>\n\nOptions:\n", argv[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(c.Stderr, flags)
		fmt.Fprintf(c.Stderr, "\nExample:\n  %s -iso game.iso 'cdrom0:\\SLUS_200.62;1'\n", argv[0])
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	if err := fs.Parse(argv[1:]); err != nil {
		return 1
	}
	args := fs.Args()
	if len(args) < 1 {
		fs.Usage()
		return 1
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if *psx && explicit["psx"] && explicit["mode"] && *mode != "psx" {
		c.PrintError(errors.Errorf("-psx conflicts with -mode %s", *mode))
		return 1
	}
	c.Config.Psx = *psx
	c.Config.Container = *iso
	c.Config.LoadPrefix = *prefix
	c.Config.Verbose = *verbose
	c.Config.Color = *color
	if *outfile != "" {
		out, err := c.Fs.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.Wrap(err, "failed to open output file"))
			return 1
		}
		defer out.Close()
		c.Config.Output = out
		c.Config.Color = false
	}
	if c.Logger == nil {
		c.Logger = c.makeLogger()
	}

	exe, err := c.Load(args[0], *mode)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	if c.RunImage != nil {
		if err := c.RunImage(exe); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	return 0
}
