package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spool/internal/dict"
	"spool/internal/maps"
)

var errKeyNotFound = errors.New("key not found")

func newMapCommand(ctx *commandContext) *cobra.Command {
	mapCmd := &cobra.Command{
		Use:   "map",
		Short: "Query lookup table lists",
	}

	mapCmd.AddCommand(newMapQueryCommand(ctx))
	mapCmd.AddCommand(newMapTypesCommand(ctx))

	return mapCmd
}

func newMapQueryCommand(ctx *commandContext) *cobra.Command {
	var (
		fileBacked bool
		fold       bool
		debug      bool
		kind       string
	)

	cmd := &cobra.Command{
		Use:   "query <table-list> <key>",
		Short: "Look up a key in a comma separated list of type:name tables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			filter, err := parseTableKind(kind)
			if err != nil {
				return err
			}
			var flags dict.Flags
			if fileBacked {
				flags |= dict.FlagSrcRHSIsFile
			}
			if fold {
				flags |= dict.FlagFoldFixed
			}
			if debug {
				flags |= dict.FlagDebug
			}

			defer ctx.close()
			set, err := maps.New(ctx.dictRegistry(), "spoolctl", args[0], flags, ctx.logger)
			if err != nil {
				return err
			}
			defer set.Free()

			out := cmd.OutOrStdout()
			if fileBacked {
				content, ok := set.FindFileBacked(args[1], filter)
				if !ok {
					return lookupFailure(set, args[1])
				}
				_, err := out.Write(content)
				return err
			}
			value, ok := set.Find(args[1], filter)
			if !ok {
				return lookupFailure(set, args[1])
			}
			fmt.Fprintln(out, value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fileBacked, "file", false, "Decode the value as base64 file content")
	cmd.Flags().BoolVar(&fold, "fold", false, "Fold the case of fixed-string keys")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log every table lookup")
	cmd.Flags().StringVar(&kind, "kind", "", "Only consult tables of this kind (fixed or pattern)")
	return cmd
}

func newMapTypesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported table types",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			for _, name := range ctx.dictRegistry().Types() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func parseTableKind(kind string) (dict.Flags, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return 0, nil
	case "fixed":
		return dict.FlagFixed, nil
	case "pattern":
		return dict.FlagPattern, nil
	default:
		return 0, fmt.Errorf("unknown table kind %q (want fixed or pattern)", kind)
	}
}

func lookupFailure(set *maps.MapSet, key string) error {
	if err := set.Err(); err != nil {
		return fmt.Errorf("lookup %q: %w", key, err)
	}
	return fmt.Errorf("lookup %q: %w", key, errKeyNotFound)
}
