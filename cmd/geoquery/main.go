package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/geoquery/internal/version"
)

type rootFlags struct {
	env        string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "geoquery",
		Short:         "Resolve free-text geographic queries into OSM point features",
		Version:       version.Version + " (" + version.Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", "", "environment name selecting config/<env>.yaml (default $ENV or local)")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "explicit config file path")

	root.AddCommand(
		newServeCmd(flags),
		newAskCmd(flags),
		newIndexCmd(flags),
		newScrapeCmd(flags),
	)
	return root
}
