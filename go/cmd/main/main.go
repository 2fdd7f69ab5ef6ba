package main

import (
	"os"

	"github.com/psxcorn/exeload/go/cmd"

	_ "github.com/psxcorn/exeload/go/cmd/crc"
	_ "github.com/psxcorn/exeload/go/cmd/dump"
	_ "github.com/psxcorn/exeload/go/cmd/info"
)

func main() { os.Exit(cmd.Main(os.Args, os.Stdout, os.Stderr)) }
