package protocol

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/estimator"
	"github.com/qosst-go/alice-core/internal/hardware"
	"github.com/qosst-go/alice-core/internal/symbols"
)

func TestAdminStopEndsRunWithoutAnyConnection(t *testing.T) {
	deps := Deps{
		Config:        testConfig(),
		Authenticator: AcceptAllAuthenticator{},
		Hardware:      hardware.NewMockModulator(0, 1),
		ChangePolicy:  func(string, string) bool { return false },
		NewSource: func(cfg *config.Config) symbols.Source {
			return symbols.NewGaussianSource(cfg.Alice.ModulationVariance)
		},
		EstimatorConfig: estimator.Config{ConversionFactor: 1, SymbolRate: 1e6, LaserWavelengthM: 1550e-9},
		Logger:          log.NewWithOptions(io.Discard, log.Options{}),
	}
	s, err := NewServer("127.0.0.1:0", deps)
	require.NoError(t, err)
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	reqDone := make(chan AdminResult, 1)
	s.AdminChannel() <- AdminRequest{Action: AdminStop, Done: reqDone}

	res := <-reqDone
	assert.True(t, res.Stopped)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after AdminStop")
	}
}

func TestAdminPrintConfigReportsCurrentSnapshot(t *testing.T) {
	cfg := testConfig()
	deps := Deps{
		Config:        cfg,
		Authenticator: AcceptAllAuthenticator{},
		Hardware:      hardware.NewMockModulator(0, 1),
		ChangePolicy:  func(string, string) bool { return false },
		NewSource: func(cfg *config.Config) symbols.Source {
			return symbols.NewGaussianSource(cfg.Alice.ModulationVariance)
		},
		EstimatorConfig: estimator.Config{ConversionFactor: 1, SymbolRate: 1e6, LaserWavelengthM: 1550e-9},
		Logger:          log.NewWithOptions(io.Discard, log.Options{}),
	}
	s, err := NewServer("127.0.0.1:0", deps)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = s.Run(ctx) }()
	defer func() { cancel(); <-done }()

	reqDone := make(chan AdminResult, 1)
	s.AdminChannel() <- AdminRequest{Action: AdminPrintConfig, Done: reqDone}
	res := <-reqDone
	assert.Same(t, cfg, res.Config)
}
