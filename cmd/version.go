package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filevault/filevault/pkg/version"
)

// NewVersionCommand reports the build version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the filevault version",
		Run: func(cmd *cobra.Command, args []string) {
			if version.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "filevault %s (%s)\n", version.Version, version.Commit)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "filevault %s\n", version.Version)
		},
	}
}
