// Command smallsc is the compiler, assembler and virtual machine driver for
// the Smalls scripting language.
package main

import (
	"os"

	"github.com/jd28/smalls/internal/maincmd"
	"github.com/mna/mainer"
)

var (
	buildVersion = "dev"
	buildDate    = "unknown"
)

func main() {
	c := &maincmd.Cmd{
		BuildVersion: buildVersion,
		BuildDate:    buildDate,
	}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
