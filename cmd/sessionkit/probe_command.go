package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/sessionkit/launcher"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Locate the CLI and report its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lc := cfg.LauncherConfig()
			lc.Logger = ctx.log()
			if timeout > 0 {
				lc.ProbeTimeout = timeout
			}

			v, err := launcher.Probe(cmd.Context(), lc)
			if err != nil {
				return err
			}

			if asJSON {
				out := newLineWriter(cmd.OutOrStdout())
				res := map[string]any{"path": v.Path, "version": v.Raw}
				if v.Parsed != nil {
					res["semver"] = v.Parsed.String()
				}
				out.writeJSON(res)
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:    %s\n", v.Path)
			if v.Raw == "" {
				fmt.Fprintln(out, "version: (not reported)")
			} else {
				fmt.Fprintf(out, "version: %s\n", v.Raw)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Override the probe timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
