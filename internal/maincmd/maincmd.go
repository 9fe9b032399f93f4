package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "smallsc"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>
       %[1]s -h|--help
       %[1]s -v|--version

Compiler, assembler and virtual machine for the Smalls scripting language.

The <command> can be one of:
       run                       Scan, parse, resolve, compile, verify and
                                 execute a source file, printing its return
                                 value or a formatted stack trace.
       disasm                    Scan, parse, resolve and compile a source
                                 file, printing the resulting module's
                                 disassembly.
       asm                       Assemble a .smallsasm textual bytecode
                                 file directly to a module, verify it, and
                                 execute it.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --gas-limit               Abort execution once this many call/branch
                                 gas units are spent (0 disables, the
                                 default).
       --step-limit              Abort execution after this many
                                 instructions dispatch (0 disables, the
                                 default).
       --max-generic-instantiations
                                 Cap on distinct generic function
                                 instantiations per module (0 disables).
       --config                  Path to a YAML file of the above limits,
                                 overridden by matching flags/env vars.

Environment variables SMALLS_GAS_LIMIT, SMALLS_STEP_LIMIT and
SMALLS_MAX_GENERIC_INSTANTIATIONS override the config file; an explicit
flag overrides both.
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	GasLimit                 uint64 `flag:"gas-limit"`
	StepLimit                uint64 `flag:"step-limit"`
	MaxGenericInstantiations int    `flag:"max-generic-instantiations"`
	ConfigPath               string `flag:"config"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]

	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", c.args[0])
	}

	if len(c.args[1:]) != 1 {
		return fmt.Errorf("%s: exactly one file must be provided", cmdName)
	}

	return nil
}

// config merges the YAML file named by -config (if any) and environment
// overrides, then layers on any limit flag the caller explicitly set on the
// command line, implementing the flag > env > file > default precedence
// described in SPEC_FULL.md's Configuration section.
func (c *Cmd) config() (Config, error) {
	cfg, err := loadConfig(c.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if c.flags["gas-limit"] {
		cfg.GasLimit = c.GasLimit
	}
	if c.flags["step-limit"] {
		cfg.StepLimit = c.StepLimit
	}
	if c.flags["max-generic-instantiations"] {
		cfg.MaxGenericInstantiations = c.MaxGenericInstantiations
	}
	return cfg, nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its errors, just return with an error code
		return mainer.Failure
	}
	return mainer.Success
}

// valid commands are those that take a mainer.Stdio and a slice of strings as
// input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		// must take 4 parameters (including receiver) and return 1
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}

		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
