package vmcore

import (
	"fmt"
	"time"
)

// HardwareBackend is the real-peripheral HALBackend. This repo ships
// no physical GPIO/ADC driver, so every pin, analog, and button call
// reports ErrHardwareFault — the stub exists so the facade's wiring is complete and a future
// platform-specific backend only needs to implement HALBackend, not
// change vmcore.
type HardwareBackend struct {
	startedAt time.Time
}

// NewHardwareBackend constructs a HardwareBackend. Millis, Micros, and
// Delay work without real peripherals, since they only need the host
// clock; Emit prints to standard output, and Initialize and Reset
// always succeed.
func NewHardwareBackend() *HardwareBackend {
	return &HardwareBackend{startedAt: time.Now()}
}

func (b *HardwareBackend) Initialize() error { return nil }
func (b *HardwareBackend) Reset()            { b.startedAt = time.Now() }

func (b *HardwareBackend) DigitalWrite(pin uint8, value uint8) error {
	return fmt.Errorf("vmcore: %w: no digital output peripheral for pin %d", ErrHardwareFault, pin)
}

func (b *HardwareBackend) DigitalRead(pin uint8) (uint8, error) {
	return 0, fmt.Errorf("vmcore: %w: no digital input peripheral for pin %d", ErrHardwareFault, pin)
}

func (b *HardwareBackend) PinMode(pin uint8, mode PinMode) error {
	return fmt.Errorf("vmcore: %w: no GPIO peripheral for pin %d", ErrHardwareFault, pin)
}

func (b *HardwareBackend) AnalogWrite(pin uint8, value uint16) error {
	return fmt.Errorf("vmcore: %w: no PWM peripheral for pin %d", ErrHardwareFault, pin)
}

func (b *HardwareBackend) AnalogRead(pin uint8) (uint16, error) {
	return 0, fmt.Errorf("vmcore: %w: no ADC peripheral for pin %d", ErrHardwareFault, pin)
}

func (b *HardwareBackend) ButtonPressed(buttonID uint8) (bool, error) {
	return false, fmt.Errorf("vmcore: %w: no button input for id %d", ErrHardwareFault, buttonID)
}

func (b *HardwareBackend) ButtonReleased(buttonID uint8) (bool, error) {
	return false, fmt.Errorf("vmcore: %w: no button input for id %d", ErrHardwareFault, buttonID)
}

func (b *HardwareBackend) Millis() uint32 {
	return uint32(time.Since(b.startedAt).Milliseconds())
}

func (b *HardwareBackend) Micros() uint32 {
	return uint32(time.Since(b.startedAt).Microseconds())
}

// Delay blocks for at least ms milliseconds, matching DELAY's
// "sleeps at least ns nanoseconds" contract.
func (b *HardwareBackend) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Emit writes a rendered printf line to the debug console. No UART is
// detected on this host-only backend, so every emission takes the
// semihosting fallback path spec.md §4.6 describes.
func (b *HardwareBackend) Emit(message string) error {
	fmt.Println(message)
	return nil
}

// pinRecord tracks the last known mode and value of one GPIO pin, for
// MockBackend's test assertions.
type pinRecord struct {
	mode    PinMode
	value   uint8
	analog  uint16
	isInput bool
}

// MockBackend is the default HALBackend: it records every pin/timing
// interaction in-process rather than touching real hardware, matching
// the role the teacher's devices.go mock devices play for host-side
// tests. It is safe for single-goroutine use, matching the VM's own
// execution model (C5 runs on the caller's goroutine).
type MockBackend struct {
	pins      map[uint8]*pinRecord
	buttons   map[uint8]bool
	startedAt time.Time
	clockMs   uint32

	// DigitalWrites records every write in call order, for assertions.
	DigitalWrites []DigitalWriteEvent
	AnalogWrites  []AnalogWriteEvent

	// Emissions records every rendered printf line, in call order —
	// the recordable sink spec.md §8 scenario 6 exercises ("I/O backend
	// receives exactly one emission equal to n=42").
	Emissions []string

	// DelaysMs records every requested delay in milliseconds. The mock
	// never actually sleeps, so host tests stay fast and deterministic.
	DelaysMs []uint32
}

// DigitalWriteEvent records one digitalWrite call.
type DigitalWriteEvent struct {
	Pin   uint8
	Value uint8
}

// AnalogWriteEvent records one analogWrite call.
type AnalogWriteEvent struct {
	Pin   uint8
	Value uint16
}

// NewMockBackend constructs an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		pins:      make(map[uint8]*pinRecord),
		buttons:   make(map[uint8]bool),
		startedAt: time.Now(),
	}
}

func (b *MockBackend) Initialize() error {
	return nil
}

func (b *MockBackend) Reset() {
	b.pins = make(map[uint8]*pinRecord)
	b.buttons = make(map[uint8]bool)
	b.DigitalWrites = nil
	b.AnalogWrites = nil
	b.Emissions = nil
	b.DelaysMs = nil
	b.clockMs = 0
}

func (b *MockBackend) recordFor(pin uint8) *pinRecord {
	r, ok := b.pins[pin]
	if !ok {
		r = &pinRecord{}
		b.pins[pin] = r
	}
	return r
}

func (b *MockBackend) DigitalWrite(pin uint8, value uint8) error {
	if int(pin) >= MaxGPIOPins {
		return fmt.Errorf("vmcore: %w: pin %d out of range", ErrHardwareFault, pin)
	}
	r := b.recordFor(pin)
	r.value = value
	b.DigitalWrites = append(b.DigitalWrites, DigitalWriteEvent{Pin: pin, Value: value})
	return nil
}

func (b *MockBackend) DigitalRead(pin uint8) (uint8, error) {
	if int(pin) >= MaxGPIOPins {
		return 0, fmt.Errorf("vmcore: %w: pin %d out of range", ErrHardwareFault, pin)
	}
	return b.recordFor(pin).value, nil
}

func (b *MockBackend) PinMode(pin uint8, mode PinMode) error {
	if int(pin) >= MaxGPIOPins {
		return fmt.Errorf("vmcore: %w: pin %d out of range", ErrHardwareFault, pin)
	}
	r := b.recordFor(pin)
	r.mode = mode
	r.isInput = mode == PinInput || mode == PinInputPullup
	return nil
}

func (b *MockBackend) AnalogWrite(pin uint8, value uint16) error {
	if int(pin) >= MaxGPIOPins {
		return fmt.Errorf("vmcore: %w: pin %d out of range", ErrHardwareFault, pin)
	}
	r := b.recordFor(pin)
	r.analog = value
	b.AnalogWrites = append(b.AnalogWrites, AnalogWriteEvent{Pin: pin, Value: value})
	return nil
}

func (b *MockBackend) AnalogRead(pin uint8) (uint16, error) {
	if int(pin) >= MaxGPIOPins {
		return 0, fmt.Errorf("vmcore: %w: pin %d out of range", ErrHardwareFault, pin)
	}
	return b.recordFor(pin).analog, nil
}

// SetButton lets a test fixture drive button state before execution.
func (b *MockBackend) SetButton(buttonID uint8, pressed bool) {
	b.buttons[buttonID] = pressed
}

func (b *MockBackend) ButtonPressed(buttonID uint8) (bool, error) {
	return b.buttons[buttonID], nil
}

func (b *MockBackend) ButtonReleased(buttonID uint8) (bool, error) {
	return !b.buttons[buttonID], nil
}

// AdvanceClock lets a test fixture move the mock clock forward
// deterministically, instead of depending on wall-clock time.
func (b *MockBackend) AdvanceClock(ms uint32) {
	b.clockMs += ms
}

func (b *MockBackend) Millis() uint32 {
	return b.clockMs
}

func (b *MockBackend) Micros() uint32 {
	return b.clockMs * 1000
}

// Delay records the requested duration without blocking, so programs
// that call delay() in tests stay deterministic and fast.
func (b *MockBackend) Delay(ms uint32) {
	b.DelaysMs = append(b.DelaysMs, ms)
}

// Emit records a rendered printf line instead of writing anywhere.
func (b *MockBackend) Emit(message string) error {
	b.Emissions = append(b.Emissions, message)
	return nil
}
