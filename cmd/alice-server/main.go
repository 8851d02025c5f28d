// Command alice-server runs the transmitter-side control-protocol station
// (spec.md's overview): it loads a TOML configuration, constructs the
// hardware facade and DSP pipeline, and serves a single Bob peer over TCP
// while an operator menu on stdin can print, reload, reset, or stop it.
//
// Flag handling follows the teacher's kissutil.go: pflag for GNU-style
// long/short flags, a custom Usage string, and an explicit -h/--help exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/qosst-go/alice-core/internal/admin"
	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/estimator"
	"github.com/qosst-go/alice-core/internal/hardware"
	"github.com/qosst-go/alice-core/internal/logging"
	"github.com/qosst-go/alice-core/internal/protocol"
	"github.com/qosst-go/alice-core/internal/symbols"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "f", "config.toml", "Path to the station's TOML configuration file.")
	addr := pflag.StringP("listen", "l", ":4242", "TCP address to accept the peer connection on.")
	verbosity := pflag.CountP("verbose", "v", "Increase log verbosity; repeatable (-vvv).")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - CV-QKD transmitter control station.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Loads a station configuration and serves the control protocol to a single peer.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	logger := logging.New(*verbosity)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration load failed", "err", err)
		return 1
	}

	mod := hardware.NewMockModulator(1e-9, 1.0)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStart()
	if err := mod.LaserOn(startCtx); err != nil {
		logger.Error("laser startup failed", "err", err)
		return 1
	}
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelStop()
		if err := mod.LaserOff(stopCtx); err != nil {
			logger.Warn("laser shutdown failed", "err", err)
		}
	}()

	deps := protocol.Deps{
		Config:        cfg,
		Authenticator: protocol.AcceptAllAuthenticator{},
		Hardware:      mod,
		ChangePolicy:  cfg.BuildChangePolicy(),
		NewSource:     newSource,
		EstimatorConfig: estimator.Config{
			ConversionFactor: cfg.Alice.ConversionFactor,
			SymbolRate:       cfg.Alice.SymbolRate,
			LaserWavelengthM: cfg.Alice.LaserWavelengthNM * 1e-9,
			SensorTolerance:  1e-12,
		},
		Logger: logger,
	}

	server, err := protocol.NewServer(*addr, deps)
	if err != nil {
		logger.Error("server startup failed", "err", err)
		return 1
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	menu := admin.NewMenu(os.Stdin, os.Stdout, server, func() (*config.Config, error) {
		return config.Load(*configPath)
	}, logger)
	go menu.Run(ctx)

	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped with error", "err", err)
		return 1
	}
	return 0
}

// newSource builds the Symbol Source (spec.md §4.A) named by
// alice.modulation in cfg.
func newSource(cfg *config.Config) symbols.Source {
	switch cfg.Alice.Modulation {
	case "psk":
		return symbols.NewPSKSource(cfg.Alice.ModulationOrder, cfg.Alice.ModulationVariance)
	case "qam":
		return symbols.NewQAMSource(cfg.Alice.ModulationOrder, cfg.Alice.ModulationVariance)
	default:
		return symbols.NewGaussianSource(cfg.Alice.ModulationVariance)
	}
}
