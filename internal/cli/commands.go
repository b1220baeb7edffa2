// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func newSyncCmd(root *RootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate new documents until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			return runSync(c.Context(), root, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single window and exit")
	return cmd
}

func newCursorCmd(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or seed the sync cursor",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted cursor",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runCursorShow(c.OutOrStdout(), root)
		},
	}

	var force bool
	seed := &cobra.Command{
		Use:   "seed <RFC3339 timestamp>",
		Short: "Write a starting cursor with no document id",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runCursorSeed(c.OutOrStdout(), root, args[0], force)
		},
	}
	seed.Flags().BoolVar(&force, "force", false, "Overwrite an existing cursor")

	cmd.AddCommand(show, seed)
	return cmd
}

func newSchemaCmd(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the row schema documents are projected onto",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runSchema(c.OutOrStdout(), root)
		},
	}
}
