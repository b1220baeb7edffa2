package cli

import (
	"github.com/spf13/cobra"
)

type RootOptions struct {
	ConfigFile string
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}

	rootCmd := &cobra.Command{
		Use:   "requestsync",
		Short: "requestsync - incremental MongoDB to analytics store replication",
		Long: `requestsync copies new documents from a MongoDB collection into BigQuery or
SQL Server. It walks the collection in fixed time windows that trail the
clock by a safety lag, and checkpoints its position after every batch so a
restart resumes where it stopped.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a YAML config file (environment variables take precedence)")

	rootCmd.AddCommand(newSyncCmd(opts), newCursorCmd(opts), newSchemaCmd(opts))

	return rootCmd
}
