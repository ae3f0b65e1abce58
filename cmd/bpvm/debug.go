package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/bpvm/vm"
	"github.com/spf13/cobra"
)

const debugHelp = `commands:
  step [n]   execute n instructions (default 1)
  regs       show the active frame's registers
  frames     show the frame and handler stacks
  continue   run to completion
  quit       leave the debugger
`

// debugger executes console commands against a session that has not run yet.
type debugger struct {
	s    *session
	out  io.Writer
	echo bool
}

func newDebugger(ctx context.Context, s *session, out io.Writer) (*debugger, error) {
	d := &debugger{s: s, out: out}
	s.vm.SetTracer(func(ev vm.TraceEvent) {
		if d.echo {
			fmt.Fprintf(d.out, "%*s%s+0x%04x  %s\n", 2*(ev.Depth-1), "", ev.Func, ev.PC, ev.Text)
		}
	})
	if err := s.vm.Start(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// exec runs one command line and reports whether the console should close.
func (d *debugger) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "step", "s":
		n := 1
		if len(fields) > 1 {
			var err error
			if n, err = strconv.Atoi(fields[1]); err != nil || n < 1 {
				return false, fmt.Errorf("step count %q", fields[1])
			}
		}
		d.echo = true
		defer func() { d.echo = false }()
		for i := 0; i < n && !d.s.vm.Done(); i++ {
			if err := d.s.vm.Step(); err != nil {
				return false, err
			}
		}
		d.reportExit()
	case "regs", "r":
		for i, v := range d.s.vm.Registers() {
			fmt.Fprintf(d.out, "r%-3d %-6s %s\n", i, v.Kind, v)
		}
	case "frames", "f":
		fmt.Fprint(d.out, d.s.vm.FrameTree())
	case "continue", "c":
		for !d.s.vm.Done() {
			if err := d.s.vm.Step(); err != nil {
				return false, err
			}
		}
		d.reportExit()
	case "quit", "q", "exit":
		return true, nil
	case "help", "h":
		fmt.Fprint(d.out, debugHelp)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return false, nil
}

func (d *debugger) reportExit() {
	if d.s.vm.Done() {
		fmt.Fprintf(d.out, "exited with code %d after %d steps\n", d.s.vm.Result(), d.s.vm.Steps())
	}
}

func (a *app) debugCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "debug <module.bpc>",
		Short: "Step through a module in an interactive console (interpreter only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}
			vcfg, jcfg, err := a.configs(cmd, f)
			if err != nil {
				return err
			}
			// native calls would skip the tracer
			jcfg.Enabled = false

			out := cmd.OutOrStdout()
			s, err := newSession(m, vcfg, jcfg, out, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			d, err := newDebugger(cmd.Context(), s, out)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "(bpvm) ",
				HistoryFile:     filepath.Join(os.TempDir(), "bpvm_debug_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
			})
			if err != nil {
				return fmt.Errorf("failed to start readline: %w", err)
			}
			defer rl.Close()

			fmt.Fprintf(out, "debugging %s, entry %s (type help)\n", args[0], functionName(m, m.Entry))
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if err != nil {
					break
				}
				quit, err := d.exec(line)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
				if quit {
					break
				}
			}
			if s.vm.Done() {
				a.exitCode = s.vm.Result()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.dispatch, "dispatch", "", "interpreter dispatch: table or switch")
	return cmd
}
