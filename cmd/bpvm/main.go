// bpvm runs register bytecode modules with the tiered JIT.
package main

import (
	"fmt"
	"os"

	"github.com/colorfulnotion/bpvm/config"
	log "github.com/colorfulnotion/bpvm/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

// app carries the state shared by every subcommand.
type app struct {
	cfgPath  string
	logLevel string
	debug    string

	cfg      config.Config
	exitCode int
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "bpvm",
		Short:             "Register bytecode VM with an x86-64 JIT",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "TOML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&a.debug, "debug", "", "comma separated modules to enable debug logging for (vm,jit,gc,loader,profile,cli)")

	rootCmd.AddCommand(
		a.runCmd(),
		a.disasmCmd(),
		a.demoCmd(),
		a.diffCmd(),
		a.chartCmd(),
		a.debugCmd(),
		a.statsCmd(),
		a.configCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "bpvm %s (%s)\n", Version, Commit)
			},
		},
	)
	return rootCmd
}

// setup loads the config file and applies the logging flags on top of it.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.debug != "" {
		cfg.Log.Modules = a.debug
	}
	if err := log.InitLogger(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.Modules != "" {
		log.EnableModules(cfg.Log.Modules)
	}
	a.cfg = cfg
	return nil
}

func main() {
	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(a.exitCode)
}
