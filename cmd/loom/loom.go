// Package loomcmder
package loomcmder

import (
	"github.com/spf13/cobra"

	graphcmder "github.com/loomcomputeco/loom/cmd/loom/graph"
	sessionscmder "github.com/loomcomputeco/loom/cmd/loom/sessions"
	versioncmder "github.com/loomcomputeco/loom/cmd/version"
)

const loomLongDesc string = `Loom is a multi-agent runtime with persistent semantic memory.

Inspect a memory store using:
  loom sessions        List sessions and their event counts
  loom graph           Show a session's entity graph`

const loomShortDesc string = "Loom - Agents that remember"

func NewLoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom",
		Short: loomShortDesc,
		Long:  loomLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Config directory (default: current directory)")

	// Add subcommands
	cmd.AddCommand(sessionscmder.NewSessionsCmd())
	cmd.AddCommand(graphcmder.NewGraphCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
