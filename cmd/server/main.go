package main

import (
	"os"

	"github.com/spf13/cobra"

	"lowcode-backend/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "lowcode",
	Short: "Runtime model publishing with generated CRUD endpoints",
	Long: `Serve CRUD endpoints for model definitions published at runtime.

Definitions live as JSON or YAML files in the models directory. Publishing or
editing a file creates its table and mounts its routes without a restart.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (default: app.yaml in . or ../..)")
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
