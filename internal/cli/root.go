// Package cli provides the command-line interface for sitefetch.
package cli

import (
	"fmt"

	"github.com/ppiankov/sitefetch/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	siteDir   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sitefetch",
	Short: "Fetch Bluesky posts and YouTube videos into a Hugo site",
	Long: "sitefetch pulls your recent Bluesky posts and YouTube channel uploads and writes them " +
		"as data files and section pages for a Hugo site.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("sitefetch %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing sitefetch.yaml")
	rootCmd.PersistentFlags().StringVar(&siteDir, "site-dir", ".", "root of the Hugo site to write into")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logger.DefaultLevel, "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logger.DefaultFormat, "log format: text, json")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *logrus.Logger {
	return logger.New(logger.Config{Level: logLevel, Format: logFormat})
}
