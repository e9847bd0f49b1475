// Package platform loads the host-side board configuration: which
// HAL backend to run against and how logical Arduino pin numbers map
// to the target board's physical pins. Grounded on zboralski-galago's
// internal/log style of a minimal typed config with sane defaults,
// generalized here to a YAML-backed struct via gopkg.in/yaml.v3, since
// the teacher itself doesn't ship a config file.
package platform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend selects which HALBackend implementation `ivmctl run` wires
// up.
type Backend string

const (
	BackendMock     Backend = "mock"
	BackendHardware Backend = "hardware"
)

// PinMapping names a logical Arduino pin by a board-specific label,
// for boards whose physical silkscreen numbering doesn't match the
// VM's pin indices.
type PinMapping struct {
	Logical  uint8  `yaml:"logical"`
	Physical string `yaml:"physical"`
}

// Config is the board configuration `ivmctl run`/`ivmctl debug` load
// before constructing a VM.
type Config struct {
	Backend  Backend      `yaml:"backend"`
	Board    string       `yaml:"board"`
	PinMap   []PinMapping `yaml:"pin_map"`
	TraceLen int          `yaml:"trace_len"`
}

// Default returns the configuration used when no file is supplied:
// the mock backend, no pin remapping, a 256-entry trace buffer.
func Default() Config {
	return Config{
		Backend:  BackendMock,
		Board:    "generic",
		TraceLen: 256,
	}
}

// Load reads and parses a YAML config file at path. A missing file is
// not an error — it's treated the same as an absent --config flag and
// Default() is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("platform: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("platform: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// PhysicalPin resolves a logical pin number to its board-specific
// label, falling back to the logical number formatted as a string
// when the board has no explicit mapping for it.
func (c Config) PhysicalPin(logical uint8) string {
	for _, m := range c.PinMap {
		if m.Logical == logical {
			return m.Physical
		}
	}
	return fmt.Sprintf("D%d", logical)
}
