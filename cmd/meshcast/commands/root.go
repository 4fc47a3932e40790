package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for meshcast
var RootCmd = &cobra.Command{
	Use:              "meshcast",
	Short:            "broadcast dissemination node",
	TraverseChildren: true,
}
