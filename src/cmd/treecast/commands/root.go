package commands

import (
	"github.com/spf13/cobra"
	"github.com/treecast/treecast/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for treecast
var RootCmd = &cobra.Command{
	Use:              "treecast",
	Short:            "treecast broadcast node",
	TraverseChildren: true,
}
