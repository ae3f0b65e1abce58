package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/colorfulnotion/bpvm/storage"
	"github.com/spf13/cobra"
)

func (a *app) statsCmd() *cobra.Command {
	var (
		profileDB string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dump JIT profiles stored by run --profile-db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.OpenProfileStore(profileDB)
			if err != nil {
				return err
			}
			defer store.Close()
			recs, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			module := ""
			for _, r := range recs {
				if r.Module != module {
					module = r.Module
					fmt.Fprintf(out, "module %s\n", module[:16])
				}
				fmt.Fprintf(out, "  %-24s calls=%-8d state=%-9s compile=%s\n", r.Function, r.Calls, r.State, time.Duration(r.CompileNs))
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "no profiles stored")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileDB, "profile-db", "", "LevelDB directory written by run --profile-db")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	_ = cmd.MarkFlagRequired("profile-db")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.Write(cmd.OutOrStdout())
		},
	}
}
