package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/mailqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Work with queue files",
	}

	queueCmd.AddCommand(newQueueEnterCommand(ctx))
	queueCmd.AddCommand(newQueuePathCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueCatCommand(ctx))
	queueCmd.AddCommand(newQueueRenameCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueEnterCommand(ctx *commandContext) *cobra.Command {
	var fromPath string

	cmd := &cobra.Command{
		Use:   "enter <queue>",
		Short: "Create a queue file from stdin or --from and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			if err := checkQueueName(queue); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			if err := store.EnsureQueue(queue); err != nil {
				return err
			}

			var src io.Reader = cmd.InOrStdin()
			if fromPath != "" {
				f, err := os.Open(fromPath)
				if err != nil {
					return fmt.Errorf("open %s: %w", fromPath, err)
				}
				defer f.Close()
				src = f
			}

			file, id, err := store.Enter(cmd.Context(), queue, 0o600)
			if err != nil {
				return fmt.Errorf("enter %s: %w", queue, err)
			}
			if _, err := io.Copy(file, src); err != nil {
				file.Close()
				_ = store.Remove(queue, id)
				return fmt.Errorf("write %s: %w", id, err)
			}
			if err := file.Close(); err != nil {
				_ = store.Remove(queue, id)
				return fmt.Errorf("close %s: %w", id, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromPath, "from", "", "Read content from this file instead of stdin")
	return cmd
}

func newQueuePathCommand(ctx *commandContext) *cobra.Command {
	var relative bool

	cmd := &cobra.Command{
		Use:   "path <queue> <id>",
		Short: "Print where a queue file lives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkQueueArgs(args[0], args[1]); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			path := store.AbsPath(args[0], args[1])
			if relative {
				path = store.Path(args[0], args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&relative, "relative", false, "Print the path relative to the spool root")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <queue>",
		Short: "List the files of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkQueueName(args[0]); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			entries, err := store.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "Queue %s is empty\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.ID,
					strconv.FormatInt(entry.Size, 10),
					entry.ModTime.UTC().Format(time.RFC3339),
					entry.Path,
				})
			}
			writeRows(out, []string{"ID", "Size", "Modified", "Path"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft})
			return nil
		},
	}
}

func newQueueCatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <queue> <id>",
		Short: "Print the content of a queue file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkQueueArgs(args[0], args[1]); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			file, err := store.Open(args[0], args[1], os.O_RDONLY, 0)
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(cmd.OutOrStdout(), file)
			return err
		},
	}
}

func newQueueRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <from> <to>",
		Short: "Move a queue file to another queue",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, from, to := args[0], args[1], args[2]
			if err := checkQueueArgs(from, id); err != nil {
				return err
			}
			if err := checkQueueName(to); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			if err := store.Rename(id, from, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s from %s to %s\n", id, from, to)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <queue> <id>",
		Short: "Delete a queue file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkQueueArgs(args[0], args[1]); err != nil {
				return err
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	}
}

func checkQueueName(queue string) error {
	if !mailqueue.ValidName(queue) {
		return fmt.Errorf("invalid queue name %q", queue)
	}
	return nil
}

func checkQueueArgs(queue, id string) error {
	if err := checkQueueName(queue); err != nil {
		return err
	}
	if !mailqueue.ValidID(id) {
		return fmt.Errorf("invalid queue id %q", id)
	}
	return nil
}
