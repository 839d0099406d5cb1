package commands

import (
	"github.com/mosaicnetworks/continuity/config"
	"github.com/spf13/cobra"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for the continuity node.
var RootCmd = &cobra.Command{
	Use:              "continuity",
	Short:            "continuity DAG consensus node",
	TraverseChildren: true,
}
