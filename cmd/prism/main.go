// Command prism talks to LLM providers through one interface: it answers
// prompts from the command line and serves an OpenAI-compatible HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/echolabsdev/prism-sub001/config"
	prismlogger "github.com/echolabsdev/prism-sub001/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logFile    string
	pretty     bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "prism",
	Short:         "Unified client for LLM providers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != "" && pretty {
			return fmt.Errorf("--logfile and --pretty are mutually exclusive")
		}
		var err error
		logger, err = prismlogger.InitWithOptions(logFile, pretty)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logFile, "logfile", "", "Path to log file. If not set, logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Use pretty console output (only valid when logfile is not set)")

	rootCmd.AddCommand(serveCmd, askCmd, embedCmd, modelsCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
