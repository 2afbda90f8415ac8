package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	logLevel  string
	logFormat string
	logFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ctdict",
		Short: "Command and telemetry dictionary codec",
		Long: `ctdict resolves YAML command/telemetry dictionaries, encodes command
frames, and decodes telemetry frames including derived values and
engineering-unit conversions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Options{
				Level:  logLevel,
				Format: logFormat,
				File:   logFile,
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: error|warn|info|debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text|json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Optional log file (rotated)")

	// Add subcommands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newPcapCmd())

	// Custom help command
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(os.Stdout, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden {
				fmt.Fprintf(os.Stdout, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(os.Stdout, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
