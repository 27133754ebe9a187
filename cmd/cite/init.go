package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and a default config file",
	Long: `Create the SQLite database at db_path and, if none exists, write the
effective configuration to the config file so it can be edited.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

// InitResponse is the response for the init command.
type InitResponse struct {
	Status      string `json:"status"`
	DBPath      string `json:"db_path"`
	ConfigPath  string `json:"config_path"`
	WroteConfig bool   `json:"wrote_config"`
}

func runInit(cmd *cobra.Command, args []string) error {
	db := mustOpenDatabase()
	defer db.Close()

	path := configPath
	if path == "" {
		path = config.Path()
	}

	wrote := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		wrote = true
	}

	output(InitResponse{Status: "initialized", DBPath: cfg.DBPath, ConfigPath: path, WroteConfig: wrote}, func() {
		outputHuman("Database: %s\n", cfg.DBPath)
		if wrote {
			outputHuman("Wrote config: %s\n", path)
		} else {
			outputHuman("Config: %s (unchanged)\n", path)
		}
	})
	return nil
}
