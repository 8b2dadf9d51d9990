package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rahul/conduit/pkg/config"
)

const version = "0.3.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit - a chat assistant that turns requests into actions",
		Long: `conduit listens on Telegram and Discord, classifies each message, resolves the
people, documents and tasks it mentions, and runs the resulting actions in parallel.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file (.yaml, .yml or .json)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newResolveCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONDUIT_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}
