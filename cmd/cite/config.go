package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying the config file, .env and
environment overrides. API keys are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := cfg.Redacted()
		output(redacted, func() {
			data, err := yaml.Marshal(redacted)
			if err != nil {
				exitWithError(ExitError, "encoding config: %v", err)
			}
			outputHuman("%s", data)
		})
		return nil
	},
}
