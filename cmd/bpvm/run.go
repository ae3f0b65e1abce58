package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colorfulnotion/bpvm/jit"
	log "github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/storage"
	"github.com/colorfulnotion/bpvm/telemetry"
	"github.com/colorfulnotion/bpvm/vm"
	"github.com/spf13/cobra"
)

type runFlags struct {
	noJIT     bool
	threshold int
	dispatch  string
	profileDB string
	otlp      string
	stats     bool
}

// configs applies the run flags over the loaded config.
func (a *app) configs(cmd *cobra.Command, f *runFlags) (vm.Config, jit.Config, error) {
	vcfg := a.cfg.VMConfig()
	jcfg := a.cfg.JITConfig()
	if f.noJIT {
		jcfg.Enabled = false
	}
	if cmd.Flags().Changed("threshold") {
		if f.threshold < 1 {
			return vcfg, jcfg, fmt.Errorf("--threshold must be at least 1")
		}
		jcfg.Threshold = f.threshold
	}
	if f.dispatch != "" {
		d, err := vm.ParseDispatch(f.dispatch)
		if err != nil {
			return vcfg, jcfg, err
		}
		vcfg.Dispatch = d
	}
	return vcfg, jcfg, nil
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().BoolVar(&f.noJIT, "no-jit", false, "interpret only")
	cmd.Flags().IntVar(&f.threshold, "threshold", jit.DefaultThreshold, "calls before a function is compiled")
	cmd.Flags().StringVar(&f.dispatch, "dispatch", "", "interpreter dispatch: table or switch")
}

func (a *app) runCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <module.bpc> [args...]",
		Short: "Execute a register bytecode module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}
			vcfg, jcfg, err := a.configs(cmd, f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(ctx, f.otlp)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Warn(log.CLIModule, "trace flush failed", "err", err)
				}
			}()

			s, err := newSession(m, vcfg, jcfg, cmd.OutOrStdout(), args[1:])
			if err != nil {
				return err
			}
			defer s.Close()

			var store *storage.ProfileStore
			if f.profileDB != "" {
				if store, err = storage.OpenProfileStore(f.profileDB); err != nil {
					return err
				}
				defer store.Close()
				if _, err := store.Warm(s.engine, m); err != nil {
					return err
				}
			}

			code, runErr := s.vm.Run(ctx)
			if store != nil {
				if _, err := store.Save(s.engine, m); err != nil {
					log.Error(log.ProfileModule, "saving profiles", "err", err)
				}
			}
			if f.stats {
				printStats(cmd.ErrOrStderr(), s)
			}
			a.exitCode = code
			return runErr
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().StringVar(&f.profileDB, "profile-db", "", "LevelDB directory to load and save JIT profiles")
	cmd.Flags().StringVar(&f.otlp, "otlp", "", "OTLP/HTTP trace collector endpoint")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print execution statistics to stderr")
	return cmd
}
