package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cms-pm/cockpit-vm/internal/platform"
	"github.com/cms-pm/cockpit-vm/isa"
	"github.com/cms-pm/cockpit-vm/vmcore"
	"github.com/cms-pm/cockpit-vm/vmcore/image"
)

func newRunCmd() *cobra.Command {
	var traceLen int
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run a bytecode image to halt or error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0], traceLen)
		},
	}
	cmd.Flags().IntVar(&traceLen, "trace", 0, "print the last N executed instructions on halt")
	return cmd
}

func loadImageFile(path string) ([]isa.Instruction, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ivmctl: read %s: %w", path, err)
	}
	if body, err := image.UnwrapAutoExec(raw); err == nil {
		return image.DecodeEnhanced(body)
	}
	return image.DecodeEnhanced(raw)
}

func buildVM(log *zap.Logger, cfg platform.Config) *vmcore.VM {
	var backend vmcore.HALBackend
	switch cfg.Backend {
	case platform.BackendHardware:
		backend = vmcore.NewHardwareBackend()
	default:
		backend = vmcore.NewMockBackend()
	}
	vm := vmcore.NewVM(backend)
	vm.AddObserver(vmcore.NewLoggingObserver(log))
	return vm
}

func runImage(path string, traceLen int) error {
	log := newLogger()
	defer log.Sync()

	cfg, err := platform.Load(configPath)
	if err != nil {
		return err
	}

	program, strings, err := loadImageFile(path)
	if err != nil {
		return err
	}

	vm := buildVM(log, cfg)
	var bb *vmcore.BlackboxObserver
	if traceLen > 0 {
		bb = vmcore.NewBlackboxObserver(traceLen)
		vm.AddObserver(bb)
	}

	if err := vm.LoadProgramWithStrings(program, strings); err != nil {
		return fmt.Errorf("ivmctl: load program: %w", err)
	}

	vm.ExecuteProgram()

	metrics := vm.GetPerformanceMetrics()
	fmt.Printf("halted: error=%s instructions=%d time_ms=%d\n",
		vm.GetLastError(), metrics.InstructionsExecuted, metrics.ExecutionTimeMs)

	if bb != nil {
		for _, entry := range bb.Trace() {
			fmt.Printf("  %s\n", isa.Disassemble(int(entry.PC), isa.Instruction{
				Opcode:    isa.Opcode(entry.Opcode),
				Immediate: uint16(entry.Operand),
			}))
		}
	}

	if !vm.GetLastError().IsNone() {
		os.Exit(1)
	}
	return nil
}
