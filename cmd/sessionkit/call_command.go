package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/sessionkit/session"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var showEvents bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call METHOD [PARAMS_JSON]",
		Short: "Send one request and print the result",
		Long: "Open a session, send METHOD with the optional JSON params, print the\n" +
			"result to stdout and close the session. A reply carrying an error\n" +
			"member fails the command.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 2 {
				raw = args[1]
			}
			params, err := parseParams(raw)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			b, closeBroker, err := openBroker(cmd.Context(), cfg, ctx.log())
			if err != nil {
				return err
			}
			defer closeBroker()
			defer ctx.flushEvents()

			sess, err := session.Open(cmd.Context(), ctx.sessionOptions(cfg, b)...)
			if err != nil {
				return err
			}
			defer sess.Close()

			pumped := make(chan struct{})
			if showEvents {
				go func() {
					defer close(pumped)
					pumpEvents(newLineWriter(cmd.ErrOrStderr()), sess.Events())
				}()
			} else {
				close(pumped)
			}

			rctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				rctx, cancel = context.WithTimeout(rctx, timeout)
				defer cancel()
			}

			reply, err := sess.Request(rctx, args[0], params)
			if err != nil {
				return err
			}

			// Flush the remaining events before printing.
			_ = sess.Close()
			<-pumped

			if reply.HasError() {
				return reply.Err()
			}
			return writeIndented(cmd.OutOrStdout(), reply.Result)
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "Stream session events to stderr as JSON lines")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to wait for the reply (0 waits forever)")
	return cmd
}
