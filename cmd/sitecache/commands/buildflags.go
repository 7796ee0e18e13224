package commands

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/sitecache/buildcfg"
)

// buildFlags selects the project directory and build config file shared by
// the serve, config and verify commands.
type buildFlags struct {
	dir  string
	file string
}

func (b *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&b.dir, "dir", "d", ".", "Project directory")
	cmd.Flags().StringVarP(&b.file, "build-config", "b", "", "Build config file (YAML); BASE_PATH overrides base")
}

func (b *buildFlags) load() (buildcfg.Config, error) {
	if b.file == "" {
		return buildcfg.Load()
	}
	return buildcfg.LoadFile(b.file)
}
