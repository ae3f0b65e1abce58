package main

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/builtins"
	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/spf13/cobra"
)

// demoModule prints fib(n) and exits 0:
//
//	main() { print(fib(n)) }
//	fib(n) { if n < 2 { return n }; return fib(n-1) + fib(n-2) }
func demoModule(n int64) (*bytecode.Module, error) {
	mb := bytecode.NewModuleBuilder()
	entry := mb.Func("main", 0, 3)
	fib := mb.Func("fib", 1, 7)
	entry.ConstI64(0, n).
		Call(1, fib.Index, 0, 1).
		CallBuiltin(2, builtins.PRINT, 1, 1).
		ConstI64(0, 0).
		Ret(0)
	fib.ConstI64(1, 2).
		Binary(bytecode.LT, 2, 0, 1).
		JmpIfFalse(2, "rec").
		Ret(0).
		Label("rec").
		ConstI64(1, 1).
		Binary(bytecode.SUB_I64, 3, 0, 1).
		Call(4, fib.Index, 3, 1).
		ConstI64(1, 2).
		Binary(bytecode.SUB_I64, 3, 0, 1).
		Call(5, fib.Index, 3, 1).
		Binary(bytecode.ADD_I64, 6, 4, 5).
		Ret(6)
	return mb.Build()
}

func (a *app) demoCmd() *cobra.Command {
	var n int64
	cmd := &cobra.Command{
		Use:   "demo <out.bpc>",
		Short: "Write the fib demo module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := demoModule(n)
			if err != nil {
				return err
			}
			if err := bytecode.WriteFile(args[0], m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (fib(%d))\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&n, "n", 25, "fib argument")
	return cmd
}
