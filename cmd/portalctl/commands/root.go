package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinkportal/backend/internal/config"
	"github.com/blinkportal/backend/internal/db"
	"github.com/blinkportal/backend/internal/logs"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operator tool for the customer portal backend",
	Long: `portalctl runs maintenance tasks against the portal database using the
same configuration file and PORTAL_* environment overrides as the server.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log SQL statements")
}

// openDB loads the config and connects to its database.
func openDB() (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logs.Init(logs.Options{Level: cfg.Logs.Level, Format: cfg.Logs.Format}); err != nil {
		return nil, err
	}
	level := gormlogger.Silent
	if verbose {
		level = gormlogger.Info
	}
	return db.Open(cfg.Database.Driver, cfg.Database.ConnString(), level)
}
