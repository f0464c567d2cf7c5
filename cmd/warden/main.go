package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "warden",
		Short:         "warden supervises one game-simulation engine session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "warden.toml", "path to instance config")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the warden version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	})
	return root
}
