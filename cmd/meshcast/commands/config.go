package commands

import (
	"github.com/mosaicnetworks/meshcast/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Meshcast config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Meshcast: *config.NewDefaultConfig(),
	}
}
