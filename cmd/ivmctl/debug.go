package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cms-pm/cockpit-vm/internal/platform"
	"github.com/cms-pm/cockpit-vm/isa"
	"github.com/cms-pm/cockpit-vm/vmcore"
)

func newDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug <image>",
		Short: "Step/run a bytecode image interactively with breakpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return debugImage(args[0])
		},
	}
}

// debugModel generalizes RunProgramDebugMode's next/run/break REPL
// loop into a bubbletea TUI: n steps one instruction, r runs to the
// next breakpoint or halt, b toggles a breakpoint at the current PC,
// q quits.
type debugModel struct {
	vm       *vmcore.VM
	program  []isa.Instruction
	bb       *vmcore.BlackboxObserver
	breaks   map[int]struct{}
	running  bool
	viewport viewport.Model
	width    int
	height   int
}

func newDebugModel(path string) (*debugModel, error) {
	cfg, err := platform.Load(configPath)
	if err != nil {
		return nil, err
	}
	program, stringTable, err := loadImageFile(path)
	if err != nil {
		return nil, err
	}

	vm := buildVM(newLogger(), cfg)
	bb := vmcore.NewBlackboxObserver(512)
	vm.AddObserver(bb)
	if err := vm.LoadProgramWithStrings(program, stringTable); err != nil {
		return nil, fmt.Errorf("ivmctl: load program: %w", err)
	}

	vp := viewport.New(60, 12)
	return &debugModel{
		vm:       vm,
		program:  program,
		bb:       bb,
		breaks:   make(map[int]struct{}),
		viewport: vp,
	}, nil
}

func debugImage(path string) error {
	m, err := newDebugModel(path)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

func (m *debugModel) Init() tea.Cmd { return nil }

func (m *debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 8
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "n":
			m.step()
		case "r":
			m.run()
		case "b":
			pc := m.vm.Engine().PC()
			if _, set := m.breaks[pc]; set {
				delete(m.breaks, pc)
			} else {
				m.breaks[pc] = struct{}{}
			}
		}
		m.viewport.SetContent(m.traceView())
	}
	return m, nil
}

func (m *debugModel) step() {
	if m.vm.IsRunning() {
		m.vm.ExecuteSingleStep()
	}
}

func (m *debugModel) run() {
	first := true
	for m.vm.IsRunning() {
		pc := m.vm.Engine().PC()
		if _, stop := m.breaks[pc]; stop && !first {
			break
		}
		first = false
		if !m.vm.ExecuteSingleStep() {
			break
		}
	}
}

func (m *debugModel) traceView() string {
	var b strings.Builder
	for _, e := range m.bb.Trace() {
		fmt.Fprintf(&b, "%04d: %s\n", e.PC, isa.Opcode(e.Opcode).String())
	}
	return b.String()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m *debugModel) View() string {
	e := m.vm.Engine()
	status := "running"
	if e.IsHalted() {
		status = fmt.Sprintf("halted (%s)", m.vm.GetLastError())
	}

	var reg strings.Builder
	fmt.Fprintf(&reg, "PC: %d\nSP: %d\nStatus: %s\nInstructions: %d",
		e.PC(), e.SP(), status, m.vm.GetInstructionCount())

	var stack strings.Builder
	depth := e.StackDepth()
	for i := depth - 1; i >= 0 && depth-i <= 8; i-- {
		v, _ := stackAt(e, i)
		fmt.Fprintf(&stack, "[%d] %d\n", i, v)
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(headerStyle.Render("Registers")+"\n"+reg.String()),
		paneStyle.Render(headerStyle.Render("Stack")+"\n"+stack.String()),
		paneStyle.Render(headerStyle.Render("Breakpoints")+"\n"+m.breaksView()),
	)
	middle := paneStyle.Render(headerStyle.Render("Disassembly") + "\n" + m.disasmView())
	bottom := paneStyle.Render(headerStyle.Render("Trace") + "\n" + m.viewport.View())
	help := "n: step   r: run to breakpoint/halt   b: toggle breakpoint   q: quit"
	return lipgloss.JoinVertical(lipgloss.Left, top, middle, bottom, help)
}

// breaksView lists every PC with an active breakpoint, in ascending order.
func (m *debugModel) breaksView() string {
	if len(m.breaks) == 0 {
		return "(none)"
	}
	pcs := make([]int, 0, len(m.breaks))
	for pc := range m.breaks {
		pcs = append(pcs, pc)
	}
	sort.Ints(pcs)
	var b strings.Builder
	for _, pc := range pcs {
		fmt.Fprintf(&b, "%04d\n", pc)
	}
	return b.String()
}

// disasmView renders a window of disassembled instructions centered on
// the current PC, marking the live instruction and any breakpoints.
func (m *debugModel) disasmView() string {
	pc := m.vm.Engine().PC()
	const window = 5
	start := pc - window
	if start < 0 {
		start = 0
	}
	end := pc + window + 1
	if end > len(m.program) {
		end = len(m.program)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		marker := "  "
		if i == pc {
			marker = "->"
		}
		if _, brk := m.breaks[i]; brk {
			marker += "*"
		} else {
			marker += " "
		}
		fmt.Fprintf(&b, "%s %s\n", marker, isa.Disassemble(i, m.program[i]))
	}
	return b.String()
}

// stackAt peeks the operand stack at a given depth index (0 = bottom)
// without mutating SP, for the debug TUI's stack pane.
func stackAt(e *vmcore.Engine, index int) (int32, bool) {
	return e.StackAt(index)
}
