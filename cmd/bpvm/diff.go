package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/jit"
	log "github.com/colorfulnotion/bpvm/log"
	"github.com/colorfulnotion/bpvm/vm"
	"github.com/colorfulnotion/bpvm/vmerrors"
	"github.com/spf13/cobra"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// snapshot is what a run must agree on in both tiers. Step counts are left
// out: natively executed calls never reach the dispatch loop.
type snapshot struct {
	ExitCode  int      `json:"exit_code"`
	Error     string   `json:"error,omitempty"`
	Stdout    []string `json:"stdout"`
	Registers []string `json:"registers,omitempty"` // entry frame, clean exits only
}

func takeSnapshot(ctx context.Context, m *bytecode.Module, vcfg vm.Config, jcfg jit.Config) (snapshot, *session, error) {
	var out bytes.Buffer
	s, err := newSession(m, vcfg, jcfg, &out, nil)
	if err != nil {
		return snapshot{}, nil, err
	}
	code, runErr := s.vm.Run(ctx)
	snap := snapshot{ExitCode: code, Stdout: strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")}
	if runErr != nil {
		// the name only: native faults report a different pc and depth
		snap.Error = vmerrors.GetErrorName(runErr)
		return snap, s, nil
	}
	for _, r := range s.vm.Registers() {
		snap.Registers = append(snap.Registers, r.String())
	}
	return snap, s, nil
}

// compareSnapshots returns an ascii diff of want against got, or "" when they
// are equal.
func compareSnapshots(want, got snapshot) (string, error) {
	left, err := json.Marshal(want)
	if err != nil {
		return "", err
	}
	right, err := json.Marshal(got)
	if err != nil {
		return "", err
	}
	delta, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return "", err
	}
	if !delta.Modified() {
		return "", nil
	}
	var leftObj interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return "", err
	}
	return formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(delta)
}

func (a *app) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <module.bpc>",
		Short: "Run a module interpreted and with the JIT at threshold 1 and compare the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}
			vcfg := a.cfg.VMConfig()
			jcfg := a.cfg.JITConfig()

			jcfg.Enabled = false
			interp, is, err := takeSnapshot(cmd.Context(), m, vcfg, jcfg)
			if err != nil {
				return err
			}
			is.Close()

			jcfg.Enabled, jcfg.Threshold = true, 1
			jitted, js, err := takeSnapshot(cmd.Context(), m, vcfg, jcfg)
			if err != nil {
				return err
			}
			defer js.Close()

			return a.reportDiff(cmd.OutOrStdout(), interp, jitted, js)
		},
	}
}

func (a *app) reportDiff(w io.Writer, interp, jitted snapshot, js *session) error {
	st := js.engine.Stats()
	fmt.Fprintf(w, "jit: native=%t compiled=%d failed=%d native_calls=%d\n", js.engine.Native(), st.TotalCompilations, st.FailedCompilations, st.NativeExecutions)
	diff, err := compareSnapshots(interp, jitted)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintf(w, "identical: exit=%d\n", interp.ExitCode)
		return nil
	}
	log.Warn(log.CLIModule, "tiers disagree", "interp_exit", interp.ExitCode, "jit_exit", jitted.ExitCode)
	fmt.Fprint(w, diff)
	a.exitCode = 1
	return nil
}
