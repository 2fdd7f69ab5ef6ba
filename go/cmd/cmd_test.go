package cmd

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/psxcorn/exeload/go/iso9660/isotest"
	"github.com/psxcorn/exeload/go/loader"
	"github.com/psxcorn/exeload/go/models"
)

func testElf(t *testing.T) []byte {
	var buf bytes.Buffer
	h := loader.Header32{
		Type: 2, Machine: 8, Entry: 0x1010,
		Phoff: loader.HeaderSize, Phentsize: loader.ProgHeaderSize, Phnum: 1,
		Ehsize: loader.HeaderSize,
	}
	copy(h.Ident[:], "\x7fELF\x01\x01\x01")
	p := loader.ProgHeader{Type: 1, Vaddr: 0x1000, Memsz: 0x100, Filesz: 0x10, Offset: 0x60, Flags: 5}
	for _, i := range []interface{}{&h, &p} {
		if err := struc.PackWithOrder(&buf, i, binary.LittleEndian); err != nil {
			t.Fatal(err)
		}
	}
	buf.Write(make([]byte, 0x20))
	return buf.Bytes()
}

func testPsx() []byte {
	p := make([]byte, loader.PsxHeaderSize+0x10)
	copy(p, "PS-X EXE")
	binary.LittleEndian.PutUint32(p[0x10:], 0x80010000)
	binary.LittleEndian.PutUint32(p[0x1c:], 0x10)
	return p
}

type testCmd struct {
	*ImageCmd
	stdout, stderr bytes.Buffer
	exe            loader.Executable
}

func newTestCmd(t *testing.T, files map[string][]byte) *testCmd {
	fs := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fs, name, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	tc := &testCmd{ImageCmd: NewImageCmd()}
	tc.Fs = fs
	tc.Stdout = &tc.stdout
	tc.Stderr = &tc.stderr
	tc.Config = &models.Config{}
	tc.Flags = flag.NewFlagSet("test", flag.ContinueOnError)
	tc.RunImage = func(exe loader.Executable) error {
		tc.exe = exe
		return nil
	}
	return tc
}

func TestRunAutoMode(t *testing.T) {
	tc := newTestCmd(t, map[string][]byte{"/a.elf": testElf(t), "/b.exe": testPsx()})
	if code := tc.Run([]string{"test", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModeElf {
		t.Fatalf("mode = %v", tc.exe.Mode())
	}
	start, size := tc.exe.TextRange()
	if start != 0x1000 || size != 0x100 {
		t.Fatalf("text range = (%#x, %#x)", start, size)
	}

	tc = newTestCmd(t, map[string][]byte{"/b.exe": testPsx()})
	if code := tc.Run([]string{"test", "/b.exe"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModePsx || tc.exe.EntryPoint() != 0x80010000 {
		t.Fatalf("mode=%v entry=%#x", tc.exe.Mode(), tc.exe.EntryPoint())
	}
}

func TestRunForcedMode(t *testing.T) {
	tc := newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	if code := tc.Run([]string{"test", "-psx", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModePsx || tc.exe.EntryPoint() != loader.PsxEntryInvalid {
		t.Fatalf("mode=%v entry=%#x", tc.exe.Mode(), tc.exe.EntryPoint())
	}

	tc = newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	if code := tc.Run([]string{"test", "-mode", "bogus", "/a.elf"}); code != 1 {
		t.Fatalf("bad mode accepted (exit %d)", code)
	}
	if !strings.Contains(tc.stderr.String(), "not a valid mode") {
		t.Fatalf("stderr = %s", &tc.stderr)
	}
}

func TestRunISO(t *testing.T) {
	disc := isotest.Build("TEST", map[string][]byte{
		"SLUS_000.01;1": testPsx(),
		"MAIN.ELF;1":    testElf(t),
	})
	tc := newTestCmd(t, map[string][]byte{"/disc.iso": disc})
	if code := tc.Run([]string{"test", "-iso", "/disc.iso", "cdrom0:\\SLUS_000.01;1"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModePsx {
		t.Fatalf("mode = %v", tc.exe.Mode())
	}

	tc = newTestCmd(t, map[string][]byte{"/disc.iso": disc})
	if code := tc.Run([]string{"test", "-iso", "/disc.iso", "main.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModeElf {
		t.Fatalf("mode = %v", tc.exe.Mode())
	}
}

func TestRunErrors(t *testing.T) {
	tc := newTestCmd(t, nil)
	if code := tc.Run([]string{"test", "/missing.elf"}); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(tc.stderr.String(), "Error:") {
		t.Fatalf("stderr = %s", &tc.stderr)
	}

	tc = newTestCmd(t, map[string][]byte{"/short.elf": []byte("\x7fELF")})
	if code := tc.Run([]string{"test", "/short.elf"}); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(tc.stderr.String(), "unexpected end of ELF file") {
		t.Fatalf("stderr = %s", &tc.stderr)
	}

	tc = newTestCmd(t, nil)
	if code := tc.Run([]string{"test"}); code != 1 {
		t.Fatalf("missing argument accepted (exit %d)", code)
	}
	if !strings.Contains(tc.stderr.String(), "Usage:") {
		t.Fatalf("stderr = %s", &tc.stderr)
	}
}

func TestRunVerboseOutput(t *testing.T) {
	tc := newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	if code := tc.Run([]string{"test", "-v", "-o", "/log.txt", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	p, err := afero.ReadFile(tc.Fs, "/log.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(p), "level=debug") || !strings.Contains(string(p), "mips_rs3000") {
		t.Fatalf("log = %s", p)
	}

	tc = newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	if code := tc.Run([]string{"test", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if strings.Contains(tc.stderr.String(), "level=debug") {
		t.Fatalf("debug output without -v: %s", &tc.stderr)
	}
}

func TestRunISOSizeGuardBeforeSniff(t *testing.T) {
	disc := isotest.Build("TEST", map[string][]byte{"BIG.ELF;1": testElf(t)})
	rec := bytes.Index(disc, []byte("BIG.ELF;1")) - 33
	if rec < 0 {
		t.Fatal("directory record not found")
	}
	binary.LittleEndian.PutUint32(disc[rec+10:], loader.MaxImageSize+1)
	binary.BigEndian.PutUint32(disc[rec+14:], loader.MaxImageSize+1)

	for _, mode := range []string{"auto", "elf", "psx"} {
		tc := newTestCmd(t, map[string][]byte{"/disc.iso": disc})
		if code := tc.Run([]string{"test", "-mode", mode, "-iso", "/disc.iso", "BIG.ELF"}); code != 1 {
			t.Fatalf("%s: exit %d", mode, code)
		}
		if !strings.Contains(tc.stderr.String(), "illegal ELF file size over 2GB") {
			t.Fatalf("%s: stderr = %s", mode, &tc.stderr)
		}
	}
}

func TestRunModePrecedence(t *testing.T) {
	tc := newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	tc.Config.Psx = true
	if code := tc.Run([]string{"test", "-mode", "elf", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModeElf {
		t.Fatalf("mode = %v", tc.exe.Mode())
	}

	tc = newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	tc.Config.Psx = true
	if code := tc.Run([]string{"test", "/a.elf"}); code != 0 {
		t.Fatalf("exit %d: %s", code, &tc.stderr)
	}
	if tc.exe.Mode() != loader.ModePsx {
		t.Fatalf("configured psx default ignored: mode = %v", tc.exe.Mode())
	}

	tc = newTestCmd(t, map[string][]byte{"/a.elf": testElf(t)})
	if code := tc.Run([]string{"test", "-psx", "-mode", "elf", "/a.elf"}); code != 1 {
		t.Fatalf("conflicting flags accepted (exit %d)", code)
	}
	if !strings.Contains(tc.stderr.String(), "-psx conflicts with -mode elf") {
		t.Fatalf("stderr = %s", &tc.stderr)
	}
}

func TestPrintErrorStack(t *testing.T) {
	tc := newTestCmd(t, nil)
	tc.Config.Verbose = true
	tc.PrintError(errors.Wrap(errors.New("boom"), "outer"))
	out := tc.stderr.String()
	if !strings.Contains(out, "Error: outer: boom") || !strings.Contains(out, "cmd_test.go:") {
		t.Fatalf("stderr = %s", out)
	}

	tc = newTestCmd(t, nil)
	tc.PrintError(errors.New("boom"))
	if strings.Contains(tc.stderr.String(), "cmd_test.go:") {
		t.Fatalf("stack printed without -v: %s", &tc.stderr)
	}
}

func TestMainDispatch(t *testing.T) {
	Register("echo-args", "print arguments", func(args []string, stdout, stderr io.Writer) int {
		fmt.Fprint(stdout, strings.Join(args, ","))
		return len(args)
	})
	var stdout, stderr bytes.Buffer
	if code := Main([]string{"exeload", "echo-args", "a", "b"}, &stdout, &stderr); code != 3 {
		t.Fatalf("exit %d", code)
	}
	if stdout.String() != "exeload echo-args,a,b" {
		t.Fatalf("stdout = %q", &stdout)
	}

	stdout.Reset()
	if code := Main([]string{"exeload", "nope"}, &stdout, &stderr); code != 1 {
		t.Fatalf("unknown command exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Command 'nope' not found.") || !strings.Contains(stderr.String(), "echo-args") {
		t.Fatalf("stderr = %s", &stderr)
	}

	stderr.Reset()
	if code := Main([]string{"exeload"}, &stdout, &stderr); code != 1 {
		t.Fatalf("no command exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Fatalf("stderr = %s", &stderr)
	}
	if stdout.Len() != 0 {
		t.Fatalf("usage went to stdout: %q", &stdout)
	}
}
