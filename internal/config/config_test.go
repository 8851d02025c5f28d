package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validBody = `
[alice]
symbol_rate_baud = 1000000
dac_rate_sps = 4000000
modulation = "gaussian"
modulation_variance = 4.0
rolloff_beta = 0.2
filter_span_symbols = 10
frequency_shift_hz = 2000000
zc_length = 63
zc_root = 25
zero_pad_head = 16
zero_pad_tail = 16
laser_wavelength_nm = 1550
conversion_factor = 1.0
change_parameter_policy = "refuse"

[[alice.pilots]]
frequency_hz = 500000
power_ratio = 0.1

[frame]
symbol_count = 1024

[hardware]
kind = "mock"
`

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, validBody)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.UpsampleFactor())
	assert.Len(t, cfg.Alice.Pilots, 1)
}

func TestLoadRejectsNonIntegralUpsampleFactor(t *testing.T) {
	path := writeConfig(t, `
[alice]
symbol_rate_baud = 1000000
dac_rate_sps = 3500000
modulation = "gaussian"
modulation_variance = 1
rolloff_beta = 0.2
frequency_shift_hz = 2000000
zc_length = 63
zc_root = 25
conversion_factor = 1.0

[frame]
symbol_count = 1

[hardware]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNonCoprimeZCRoot(t *testing.T) {
	path := writeConfig(t, `
[alice]
symbol_rate_baud = 1000000
dac_rate_sps = 4000000
modulation = "gaussian"
modulation_variance = 1
rolloff_beta = 0.2
frequency_shift_hz = 2000000
zc_length = 63
zc_root = 21
conversion_factor = 1.0

[frame]
symbol_count = 1

[hardware]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsFrequencyShiftWithinBandwidth(t *testing.T) {
	path := writeConfig(t, `
[alice]
symbol_rate_baud = 1000000
dac_rate_sps = 4000000
modulation = "gaussian"
modulation_variance = 1
rolloff_beta = 0.2
frequency_shift_hz = 100
zc_length = 63
zc_root = 25
conversion_factor = 1.0

[frame]
symbol_count = 1

[hardware]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownHardwareKind(t *testing.T) {
	path := writeConfig(t, strings.Replace(validBody, `kind = "mock"`, `kind = "real_laser"`, 1))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildChangePolicy(t *testing.T) {
	cfg := &Config{}

	cfg.Alice.ChangeParameterPolicy = "accept"
	assert.True(t, cfg.BuildChangePolicy()("rolloff_beta", "0.3"))

	cfg.Alice.ChangeParameterPolicy = "refuse"
	assert.False(t, cfg.BuildChangePolicy()("rolloff_beta", "0.3"))

	cfg.Alice.ChangeParameterPolicy = ""
	assert.False(t, cfg.BuildChangePolicy()("rolloff_beta", "0.3"))

	cfg.Alice.ChangeParameterPolicy = "rolloff_beta, frequency_shift_hz"
	policy := cfg.BuildChangePolicy()
	assert.True(t, policy("rolloff_beta", "0.3"))
	assert.True(t, policy("FREQUENCY_SHIFT_HZ", "2100000"))
	assert.False(t, policy("zc_root", "7"))
}
