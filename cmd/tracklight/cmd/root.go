// Package cmd assembles the tracklight command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo carries version metadata into commands.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewRootCommand creates the tracklight root command.
func NewRootCommand(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "tracklight",
		Short: "Tracklight real-time event hub",
		Long: `Tracklight distributes project events (file changes, commits, progress
and risk updates, task changes) to dashboard subscribers in real time,
over WebSocket and Server-Sent Events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand(info))
	return root
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tracklight %s (commit %s, built %s)\n",
				info.Version, info.Commit, info.Date)
		},
	}
}
