// Package config loads and validates the immutable configuration snapshot
// used by the DSP pipeline, the hardware facade, and the control-protocol
// server (spec.md §3, §6).
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Pilot describes a single classical pilot tone multiplexed with the
// quantum signal (spec.md §4.B step 4).
type Pilot struct {
	FrequencyHz float64 `toml:"frequency_hz"`
	PowerRatio  float64 `toml:"power_ratio"`
}

// Alice carries the DSP and protocol parameters of the `[alice]` section.
type Alice struct {
	SymbolRate             float64 `toml:"symbol_rate_baud"`
	DACRate                float64 `toml:"dac_rate_sps"`
	Modulation             string  `toml:"modulation"` // "gaussian", "psk", "qam"
	ModulationOrder        int     `toml:"modulation_order"`
	ModulationVariance     float64 `toml:"modulation_variance"`
	RolloffBeta            float64 `toml:"rolloff_beta"`
	FilterSpanSymbols      int     `toml:"filter_span_symbols"`
	FrequencyShiftHz       float64 `toml:"frequency_shift_hz"`
	Pilots                 []Pilot `toml:"pilots"`
	ZCLength               int     `toml:"zc_length"`
	ZCRoot                 int     `toml:"zc_root"`
	ZeroPadHead            int     `toml:"zero_pad_head"`
	ZeroPadTail            int     `toml:"zero_pad_tail"`
	LaserWavelengthNM      float64 `toml:"laser_wavelength_nm"`
	ConversionFactor       float64 `toml:"conversion_factor"`
	ChangeParameterPolicy  string  `toml:"change_parameter_policy"` // "accept", "refuse", or comma-separated allowed names
}

// Frame carries the per-frame sizing parameters of the `[frame]` section.
type Frame struct {
	SymbolCount int `toml:"symbol_count"`
}

// Hardware carries the `[hardware]` section, selecting the facade
// implementation and the failure-classification policy of spec.md §7.
type Hardware struct {
	Kind          string `toml:"kind"` // "mock" is the only kind the core ships
	FatalOnFailure bool  `toml:"fatal_on_failure"`
}

// Config is the immutable snapshot described by spec.md §3. The `[bob]`
// section is decoded into an opaque map and never consulted by the core,
// per spec.md §6.
type Config struct {
	Alice    Alice                  `toml:"alice"`
	Frame    Frame                  `toml:"frame"`
	Hardware Hardware               `toml:"hardware"`
	Bob      map[string]interface{} `toml:"bob"`
}

// Load parses path as TOML and validates it. A parse or validation failure
// is fatal to startup per spec.md §7.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return &cfg, nil
}

// UpsampleFactor returns f_DAC/Rₛ (spec.md §4.B step 1).
func (c *Config) UpsampleFactor() float64 {
	return c.Alice.DACRate / c.Alice.SymbolRate
}

// Validate enforces the invariants spec.md calls out at config-load time:
// the upsampling factor must be integral, gcd(u, N_ZC)=1, and the frequency
// shift must clear the signal bandwidth.
func (c *Config) Validate() error {
	if c.Alice.SymbolRate <= 0 {
		return fmt.Errorf("alice.symbol_rate_baud must be positive")
	}
	if c.Alice.DACRate <= 0 {
		return fmt.Errorf("alice.dac_rate_sps must be positive")
	}

	l := c.UpsampleFactor()
	if l != float64(int(l)) {
		return fmt.Errorf("alice.dac_rate_sps/alice.symbol_rate_baud = %v is not an integer", l)
	}

	if c.Alice.ZCLength <= 0 {
		return fmt.Errorf("alice.zc_length must be positive")
	}
	if gcd(abs(c.Alice.ZCRoot), c.Alice.ZCLength) != 1 {
		return fmt.Errorf("gcd(zc_root=%d, zc_length=%d) != 1", c.Alice.ZCRoot, c.Alice.ZCLength)
	}

	bandwidth := c.Alice.SymbolRate * (1 + c.Alice.RolloffBeta)
	if c.Alice.FrequencyShiftHz <= bandwidth/2 {
		return fmt.Errorf("alice.frequency_shift_hz=%v must exceed half the signal bandwidth %v", c.Alice.FrequencyShiftHz, bandwidth/2)
	}

	if c.Frame.SymbolCount <= 0 {
		return fmt.Errorf("frame.symbol_count must be positive")
	}

	switch strings.ToLower(c.Hardware.Kind) {
	case "", "mock":
	default:
		return fmt.Errorf("hardware.kind=%q: the core only ships a mock facade; real drivers are out of scope (spec.md §1)", c.Hardware.Kind)
	}

	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ChangePolicy decides whether a CHANGE_PARAMETER_REQUEST (spec.md §4.F) is
// accepted. It never mutates state on refusal, per spec.md §9 Open Question (i).
type ChangePolicy func(name, value string) bool

// BuildChangePolicy derives a ChangePolicy from alice.change_parameter_policy.
// "accept" and "refuse" are blanket policies; any other value is treated as a
// comma-separated allow-list of parameter names.
func (c *Config) BuildChangePolicy() ChangePolicy {
	policy := strings.TrimSpace(strings.ToLower(c.Alice.ChangeParameterPolicy))
	switch policy {
	case "accept":
		return func(string, string) bool { return true }
	case "", "refuse":
		return func(string, string) bool { return false }
	default:
		allowed := map[string]bool{}
		for _, name := range strings.Split(policy, ",") {
			allowed[strings.TrimSpace(name)] = true
		}
		return func(name, _ string) bool { return allowed[strings.ToLower(name)] }
	}
}
