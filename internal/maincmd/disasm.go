package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/mna/mainer"
)

// Disasm scans, parses, resolves and compiles the named source file and
// prints the resulting module's disassembly (SPEC_FULL.md §6 "disasm
// <file>").
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, err)
	}

	cfg, err := c.config()
	if err != nil {
		return printError(stdio, err)
	}

	_, _, mod, err := compileFile(path, src, cfg)
	if err != nil {
		return printError(stdio, err)
	}

	fmt.Fprint(stdio.Stdout, bytecode.DisassembleModule(mod))
	return nil
}
