//go:build linux

// memhound is the command-line control surface over the memory engine:
// region listing, value search and refinement, memory read/write, freezing
// and pointer chain scans against a live process.
package main

import (
	"fmt"
	"os"

	"memhound/engine"
	"memhound/process"

	"github.com/spf13/cobra"
)

var (
	flagPID    int
	flagConfig string
	flagMode   string
)

var rootCmd = &cobra.Command{
	Use:           "memhound",
	Short:         "Search and mutate values in another process's memory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPID, "pid", 0, "target process id")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "engine config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&flagMode, "mode", "normal", "access mode: normal|writethrough|nocache|pgfault")
}

func newEngine() (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	if flagConfig != "" {
		var err error
		cfg, err = engine.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
	}
	return engine.New(cfg), nil
}

func attach() (*engine.Handle, error) {
	if flagPID <= 0 {
		return nil, fmt.Errorf("--pid is required")
	}
	e, err := newEngine()
	if err != nil {
		return nil, err
	}
	return e.Attach(process.ProcessID(flagPID))
}

func accessMode() (process.AccessMode, error) {
	for _, m := range process.AccessModes {
		if m.String() == flagMode {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown access mode %q", flagMode)
}
