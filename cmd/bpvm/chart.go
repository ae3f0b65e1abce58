package main

import (
	"fmt"
	"io"
	"os"

	"github.com/colorfulnotion/bpvm/jit"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/spf13/cobra"
)

// stateColors follows the tier ladder from cold blue to compiled green.
var stateColors = map[jit.State]string{
	jit.Cold:      "#5470c6",
	jit.Warm:      "#fac858",
	jit.Hot:       "#ee6666",
	jit.Compiling: "#ee6666",
	jit.Compiled:  "#91cc75",
	jit.Failed:    "#9a60b4",
}

// renderProfileChart writes an HTML page with one bar per profiled function.
func renderProfileChart(w io.Writer, s *session, title string) error {
	fns := sortedFunctions(s.engine)
	names := make([]string, 0, len(fns))
	calls := make([]opts.BarData, 0, len(fns))
	compile := make([]opts.BarData, 0, len(fns))
	for _, idx := range fns {
		pr := s.engine.Profiler().Profile(idx)
		name := functionName(s.mod, idx)
		names = append(names, name)
		calls = append(calls, opts.BarData{
			Name:      name,
			Value:     pr.Calls,
			ItemStyle: &opts.ItemStyle{Color: stateColors[pr.State]},
			Tooltip: &opts.Tooltip{
				Show:      opts.Bool(true),
				Formatter: types.FuncStr(fmt.Sprintf("%s<br/>calls: %d<br/>state: %s", name, pr.Calls, pr.State)),
			},
		})
		compile = append(compile, opts.BarData{Name: name, Value: s.engine.CompileTime[idx].Microseconds()})
	}

	st := s.engine.Stats()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("native=%d interp=%d compiled=%d failed=%d", st.NativeExecutions, st.InterpExecutions, st.TotalCompilations, st.FailedCompilations),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("calls", calls).
		AddSeries("compile µs", compile)

	page := components.NewPage()
	page.AddCharts(bar)
	return page.Render(w)
}

func (a *app) chartCmd() *cobra.Command {
	f := &runFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "chart <module.bpc>",
		Short: "Run a module and chart per-function call counts and JIT states",
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
			s, err := newSession(m, vcfg, jcfg, io.Discard, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.vm.Run(cmd.Context()); err != nil {
				return err
			}

			fh, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := renderProfileChart(fh, s, args[0]); err != nil {
				fh.Close()
				return err
			}
			if err := fh.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().StringVar(&out, "out", "profile.html", "output HTML file")
	return cmd
}
