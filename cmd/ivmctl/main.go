// Command ivmctl is the host-side CLI for loading, running, and
// disassembling cockpit-vm bytecode images. It is an external
// collaborator per spec.md §1, supplemented here because the original
// source tree ships one (lib/vm_compiler/src/main.cpp) and because it
// is how the rest of this repo actually gets exercised end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cms-pm/cockpit-vm/internal/cli"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:          "ivmctl",
		Short:        "Load, run, and disassemble cockpit-vm bytecode images",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "board config YAML path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose structured logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newDebugCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	return cli.NewLogger(verbose)
}
