package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/vm"
	"github.com/mna/mainer"
)

// Asm assembles the named .smallsasm textual bytecode file directly to a
// module, verifies it, and executes it — the fast path for iterating on
// bytecode by hand without going through the frontend (SPEC_FULL.md §6 "asm
// <file.smallsasm>").
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, err)
	}

	cfg, err := c.config()
	if err != nil {
		return printError(stdio, err)
	}

	rt := runtime.NewRuntime()
	mod, err := bytecode.Assemble(rt, moduleName(path), src)
	if err != nil {
		return printError(stdio, err)
	}
	if err := bytecode.Verify(mod); err != nil {
		return printError(stdio, err)
	}

	entry, err := entryFunction(mod)
	if err != nil {
		return printError(stdio, err)
	}

	machine := vm.New(rt)
	machine.RegisterModule(mod)
	if cfg.GasLimit > 0 {
		machine.SetGasLimit(cfg.GasLimit)
	}
	if cfg.StepLimit > 0 {
		machine.SetStepLimit(cfg.StepLimit)
	}

	if mod.Init >= 0 {
		if _, err := machine.Execute(mod, mod.Functions[mod.Init], nil); err != nil {
			return printError(stdio, formatFailure(err))
		}
	}

	result, err := machine.Execute(mod, entry, nil)
	if err != nil {
		return printError(stdio, formatFailure(err))
	}

	fmt.Fprintln(stdio.Stdout, rt.Stringify(result))
	return nil
}
