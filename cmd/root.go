package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stepcap/stepcap/internal/config"
	"github.com/stepcap/stepcap/internal/logging"
)

var (
	projectDir string
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stepcap",
	Short: "Stepcap - record browser sessions into step-by-step guides",
	Long: `Stepcap drives a local Chrome instance and records your interactions
with it: clicks, text entry, scrolling, and navigation, each with a
screenshot of the page right after the step.

Recordings are stored locally and can be listed, inspected, and managed
with the sessions subcommands. A local WebSocket control endpoint lets
editor and popup UIs drive recording sessions.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
}

// initConfig sets up logging and loads the configuration file.
func initConfig() {
	if err := logging.Initialize(projectDir); err != nil {
		// Logging is best-effort; commands still work without a log file.
		os.Stderr.WriteString("warning: " + err.Error() + "\n")
	}
	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		logging.Get().SetLevel(logging.DEBUG)
	}

	loaded, err := config.Load(projectDir)
	if err != nil {
		logging.Error("config load failed, using defaults: %v", err)
		loaded = config.Default()
	}
	cfg = loaded
}
