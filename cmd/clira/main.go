package main

import (
	"fmt"
	"os"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/juise/clira/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags.
	flagConfig   string
	flagURL      string
	flagLogLevel string
	flagAuthInit bool
	flagTimeout  string
	flagTrace    string

	cfg    *config.Config
	logger hclog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clira",
	Short: "Talk to a CLIRA mixer from the command line",
	Long: `clira is a utility for working with the CLIRA mixer protocol.

It runs RPCs against devices behind a mixer, answering host key and
password prompts on the terminal, and encodes, decodes and replays
mux frames for debugging.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(replayCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: .clira.yaml or ~/.config/clira/config.yaml)")
	pf.StringVar(&flagURL, "url", "", "mixer URL: ws, wss, tcp, unix or stdio")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.BoolVar(&flagAuthInit, "auth-init", false, "route authentication prompts through an auth channel")
	pf.StringVar(&flagTimeout, "timeout", "", "rpc timeout, 0 to wait forever")
	pf.StringVar(&flagTrace, "trace", "", "record transport messages to a CBOR trace file")
}

// setup resolves configuration and installs logging and metrics.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}

	pf := cmd.Flags()
	if pf.Changed("url") {
		cfg.URL = flagURL
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if pf.Changed("auth-init") {
		cfg.AuthInit = flagAuthInit
	}
	if pf.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if pf.Changed("trace") {
		cfg.Trace = flagTrace
	}
	if err := cfg.Finish(); err != nil {
		return err
	}

	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	logger = hclog.New(&hclog.LoggerOptions{
		Name:   "clira",
		Level:  level,
		Output: os.Stderr,
	})
	if cfg.ConfigFile != "" {
		logger.Debug("loaded config", "file", cfg.ConfigFile)
	}

	// SIGUSR1 dumps the in-memory metrics to stderr.
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(sink)
	mcfg := metrics.DefaultConfig("")
	mcfg.EnableHostname = false
	mcfg.EnableRuntimeMetrics = false
	if _, err := metrics.NewGlobal(mcfg, sink); err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	return nil
}
