package main

import (
	"fmt"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/spf13/cobra"
)

func (a *app) disasmCmd() *cobra.Command {
	var native string
	cmd := &cobra.Command{
		Use:   "disasm <module.bpc>",
		Short: "List a module's bytecode, and optionally one function's native code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, bytecode.DisassembleModule(m))
			if native == "" {
				return nil
			}
			idx := m.FunctionIndex(native)
			if idx < 0 {
				return fmt.Errorf("no function named %q", native)
			}
			body, err := jit.Compile(m.Functions[idx], uint32(idx))
			if err != nil {
				return fmt.Errorf("compiling %s: %w", native, err)
			}
			fmt.Fprintf(out, "\n; native %s: %d bytes, result %s\n", native, len(body.Code), body.ResultKind)
			fmt.Fprint(out, jit.DisassembleBody(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&native, "native", "", "compile the named function and list its x86-64 code")
	return cmd
}
