package main

import (
	"os"

	"inkwell/api/internal/config"
	"inkwell/api/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "inkwell-api",
	Short: "Inkwell document editor API",
	Example: `inkwell-api serve
inkwell-api migrate
inkwell-api user create -e admin@example.com -p <password> -n Admin -r admin
inkwell-api search reindex`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(createUserCmd())

	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(reindexCmd())

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
