package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jd28/smalls/lang/vm"
	"github.com/mna/mainer"
)

// Run scans, parses, resolves, compiles, verifies and executes the named
// source file, printing its return value (or a formatted stack trace on
// failure) to stdout/stderr (SPEC_FULL.md §6 "run <file>").
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, err)
	}

	cfg, err := c.config()
	if err != nil {
		return printError(stdio, err)
	}

	rt, fset, mod, err := compileFile(path, src, cfg)
	if err != nil {
		return printError(stdio, err)
	}

	entry, err := entryFunction(mod)
	if err != nil {
		return printError(stdio, err)
	}

	machine := vm.New(rt)
	machine.RegisterModule(mod)
	machine.SetFileSet(fset)
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

// formatFailure renders a *vm.Failure with its captured stack trace, falling
// back to the plain error for anything else (e.g. a frontend error that
// never reached the VM).
func formatFailure(err error) error {
	var fail *vm.Failure
	if errors.As(err, &fail) {
		return fmt.Errorf("%s\n%s", fail.Err, fail.Trace)
	}
	return err
}
