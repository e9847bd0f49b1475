package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cms-pm/cockpit-vm/isa"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <image>",
		Short: "Print one disassembled line per instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, strings, err := loadImageFile(args[0])
			if err != nil {
				return err
			}
			for _, line := range isa.DisassembleProgram(program) {
				fmt.Println(line)
			}
			for i, s := range strings {
				fmt.Printf("string[%d]: %q\n", i, s)
			}
			return nil
		},
	}
}
