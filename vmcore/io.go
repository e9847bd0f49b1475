package vmcore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PinMode mirrors IOController::PinMode: the four digital pin modes
// the Arduino HAL surface supports.
type PinMode uint8

const (
	PinInput PinMode = iota
	PinOutput
	PinInputPullup
	PinNoPull
)

// Limits grounded on io_controller.h.
const (
	MaxStrings       = 32
	MaxGPIOPins      = 20
	StringBufferSize = 64
)

// InteractionID tags one asynchronous HAL request/response pair (an
// ADC conversion, a timer wait) so the caller can match a deferred
// response to its originating request. The teacher's devices.go uses
// a plain uint32 for this; InteractionID here is uuid-derived so
// concurrent callers never collide on a reused counter value.
type InteractionID = uuid.UUID

// NewInteractionID mints a fresh InteractionID for one async request.
func NewInteractionID() InteractionID {
	return uuid.New()
}

// HALBackend is the hardware abstraction boundary (C7): every
// Arduino-style I/O primitive the VM can execute. HardwareBackend and
// MockBackend are the two implementations this repo ships.
type HALBackend interface {
	DigitalWrite(pin uint8, value uint8) error
	DigitalRead(pin uint8) (uint8, error)
	PinMode(pin uint8, mode PinMode) error
	AnalogWrite(pin uint8, value uint16) error
	AnalogRead(pin uint8) (uint16, error)
	ButtonPressed(buttonID uint8) (bool, error)
	ButtonReleased(buttonID uint8) (bool, error)
	Delay(ms uint32)
	Millis() uint32
	Micros() uint32
	Initialize() error
	Reset()

	// Emit routes one rendered PRINTF string to the backend's output
	// sink (a hardware UART when detected, a debug console otherwise,
	// per spec.md §4.6).
	Emit(message string) error
}

// IOController is the VM's I/O controller (C7): it mediates every
// HAL call through a HALBackend, and owns the compile-time string
// table and printf formatting used by OP_PRINTF.
type IOController struct {
	backend HALBackend

	strings []string
}

// NewIOController wraps backend in an IOController with an empty
// string table.
func NewIOController(backend HALBackend) *IOController {
	return &IOController{backend: backend}
}

// AddString appends a string literal to the compile-time string table
// and returns its index, or false if the table is full.
func (io *IOController) AddString(s string) (uint8, bool) {
	if len(io.strings) >= MaxStrings {
		return 0, false
	}
	if len(s) > StringBufferSize {
		s = s[:StringBufferSize]
	}
	io.strings = append(io.strings, s)
	return uint8(len(io.strings) - 1), true
}

// StringCount returns how many string literals are loaded.
func (io *IOController) StringCount() int {
	return len(io.strings)
}

// Printf renders stringID's format string against args, substituting
// %d/%i/%u, %x, %c, and %s (a second string-table index) left to
// right, and routes the rendered line to the backend via Emit. A
// missing argument is not an error: per spec.md §7 it is documented
// guest-visible behavior, padded with the conversion's default (0 for
// numeric verbs, '?' for %c, "(null)" for %s or an out-of-range %s
// index). It returns ErrPrintfError only if stringID itself is out of
// range, and ErrHardwareFault if the backend's Emit fails.
func (io *IOController) Printf(stringID uint8, args []int32) (string, VMError) {
	if int(stringID) >= len(io.strings) {
		return "", ErrPrintfError
	}
	format := io.strings[stringID]

	var out strings.Builder
	argIdx := 0
	nextArg := func() (int32, bool) {
		if argIdx >= len(args) {
			return 0, false
		}
		v := args[argIdx]
		argIdx++
		return v, true
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i == len(format)-1 {
			out.WriteByte(c)
			continue
		}
		verb := format[i+1]
		switch verb {
		case 'd', 'i', 'u':
			if v, ok := nextArg(); ok {
				fmt.Fprintf(&out, "%d", v)
			} else {
				out.WriteByte('0')
			}
			i++
		case 'x':
			if v, ok := nextArg(); ok {
				fmt.Fprintf(&out, "%x", v)
			} else {
				out.WriteByte('0')
			}
			i++
		case 'c':
			if v, ok := nextArg(); ok {
				out.WriteByte(byte(v))
			} else {
				out.WriteByte('?')
			}
			i++
		case 's':
			if v, ok := nextArg(); ok && int(uint8(v)) < len(io.strings) {
				out.WriteString(io.strings[uint8(v)])
			} else {
				out.WriteString("(null)")
			}
			i++
		case '%':
			out.WriteByte('%')
			i++
		default:
			out.WriteByte(c)
		}
	}

	rendered := out.String()
	if err := io.backend.Emit(rendered); err != nil {
		return "", ErrHardwareFault
	}
	return rendered, ErrNone
}

func (io *IOController) DigitalWrite(pin uint8, value uint8) error {
	return io.backend.DigitalWrite(pin, value)
}

func (io *IOController) DigitalRead(pin uint8) (uint8, error) {
	return io.backend.DigitalRead(pin)
}

func (io *IOController) PinMode(pin uint8, mode PinMode) error {
	return io.backend.PinMode(pin, mode)
}

func (io *IOController) AnalogWrite(pin uint8, value uint16) error {
	return io.backend.AnalogWrite(pin, value)
}

func (io *IOController) AnalogRead(pin uint8) (uint16, error) {
	return io.backend.AnalogRead(pin)
}

func (io *IOController) ButtonPressed(buttonID uint8) (bool, error) {
	return io.backend.ButtonPressed(buttonID)
}

func (io *IOController) ButtonReleased(buttonID uint8) (bool, error) {
	return io.backend.ButtonReleased(buttonID)
}

// Delay forwards ms to the backend, matching IOController::delay.
func (io *IOController) Delay(ms uint32) {
	io.backend.Delay(ms)
}

func (io *IOController) Millis() uint32 {
	return io.backend.Millis()
}

func (io *IOController) Micros() uint32 {
	return io.backend.Micros()
}

// InitializeHardware delegates to the backend, matching
// ComponentVM's construction-time io_.initialize_hardware() call.
func (io *IOController) InitializeHardware() error {
	return io.backend.Initialize()
}

// ResetHardware clears the string table and delegates backend reset,
// matching ComponentVM::reset_vm()'s io_.reset_hardware().
func (io *IOController) ResetHardware() {
	io.strings = nil
	io.backend.Reset()
}
