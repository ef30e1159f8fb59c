package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/resolve"
)

const defaultServiceTimeout = 10 * time.Second

func newAddressCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	addrCmd := &cobra.Command{
		Use:   "address",
		Short: "Ask the rewrite service about addresses",
	}

	addrCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultServiceTimeout, "Give up when the rewrite service has not answered within this time")

	addrCmd.AddCommand(newAddressRewriteCommand(ctx, &timeout))
	addrCmd.AddCommand(newAddressResolveCommand(ctx, &timeout))

	return addrCmd
}

func newAddressRewriteCommand(ctx *commandContext, timeout *time.Duration) *cobra.Command {
	var internal bool

	cmd := &cobra.Command{
		Use:   "rewrite <ruleset> <address>",
		Short: "Rewrite an address with the named ruleset (canonical or local)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.rewriteClient()
			if err != nil {
				return err
			}
			defer ctx.close()
			cfg, _ := ctx.ensureConfig()
			reqCtx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			rewrite := client.Rewrite
			if internal {
				rewrite = client.RewriteInternal
			}
			result, err := rewrite(reqCtx, args[0], args[1])
			if err != nil {
				return wrapServiceError(err, cfg.IPC.RewriteService, *timeout)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&internal, "internal", false, "Treat the address as unquoted internal form")
	return cmd
}

func newAddressResolveCommand(ctx *commandContext, timeout *time.Duration) *cobra.Command {
	var (
		sender   string
		internal bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <address>",
		Short: "Resolve an address to transport, next hop and recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.rewriteClient()
			if err != nil {
				return err
			}
			defer ctx.close()
			cfg, _ := ctx.ensureConfig()
			reqCtx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			resolveAddr := client.Resolve
			if internal {
				resolveAddr = client.ResolveInternal
			}
			reply, err := resolveAddr(reqCtx, sender, args[0])
			if err != nil {
				return wrapServiceError(err, cfg.IPC.RewriteService, *timeout)
			}
			writeRows(cmd.OutOrStdout(),
				[]string{"Transport", "Next hop", "Recipient", "Flags"},
				[][]string{replyRow(reply)}, nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "Envelope sender for sender-dependent routing")
	cmd.Flags().BoolVar(&internal, "internal", false, "Treat the address as unquoted internal form")
	return cmd
}

func replyRow(reply resolve.Reply) []string {
	return []string{reply.Transport, reply.Nexthop, reply.Recipient, reply.Flags.String()}
}
