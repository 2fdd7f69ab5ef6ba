package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// MainFunc runs a subcommand. args[0] is "<program> <command>".
type MainFunc func(args []string, stdout, stderr io.Writer) int

type command struct {
	name, desc string
	main       MainFunc
}

var commands = make(map[string]*command)

// Register adds a subcommand. Subcommand packages call it from init.
func Register(name, desc string, main MainFunc) {
	commands[name] = &command{name, desc, main}
}

func usage(w io.Writer, prog string) {
	names := make([]string, 0, len(commands))
	pad := 0
	for name := range commands {
		names = append(names, name)
		if len(name) > pad {
			pad = len(name)
		}
	}
	sort.Strings(names)
	fmt.Fprintf(w, "Usage: %s <command> [options] <file>\n\nCommands:\n", prog)
	for _, name := range names {
		fmt.Fprintf(w, "  %-*s  %s\n", pad, name, commands[name].desc)
	}
	fmt.Fprintf(w, "\nExample: %s info -v bins/mips.ps2.elf\n", prog)
}

// Main dispatches argv to a registered subcommand and returns its exit code.
func Main(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 2 {
		usage(stderr, argv[0])
		return 1
	}
	cmd, ok := commands[argv[1]]
	if !ok {
		fmt.Fprintf(stderr, "Command '%s' not found.\n\n", argv[1])
		usage(stderr, argv[0])
		return 1
	}
	args := append([]string{strings.Join(argv[:2], " ")}, argv[2:]...)
	return cmd.main(args, stdout, stderr)
}
