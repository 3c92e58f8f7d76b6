package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/filevault/filevault/pkg/environment"
	"github.com/filevault/filevault/pkg/logging"
)

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand(fs afero.Fs, ctx context.Context, env *environment.Environment, logger *logging.Logger) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "filevault",
		Short: "Multi-tenant file storage gateway.",
		Long: `Filevault is a multi-tenant file storage gateway. Authenticated users upload
files, which are deduplicated by content hash, classified into categories,
persisted in an object store, and tracked in a metadata catalog that drives
listing, search, analytics, and deletion.`,
	}
	rootCmd.AddCommand(NewServeCommand(fs, ctx, env, logger))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
