// Package cli implements the gentlereview command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/watsumi/gentle-review/internal/config"
)

const version = "0.1.0"

const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var (
	configPath string
	envFile    string
	useMock    bool
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:           "gentlereview",
	Short:         "Rewrite harsh code review comments gently",
	Long:          "Gentle Review fits an enhance control onto every review comment of a page and streams a gentler rewrite from a local or remote LLM.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := loadEnv(envFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with GENTLE_* variables")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "use the mock adapter instead of real LLM backends")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadEnv reads the dotenv file without overriding variables already set.
// A missing default file is not an error.
func loadEnv(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("env file %s: %w", path, err)
}

// Run executes the root command and returns an exit code.
func Run() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var usage usageError
		if errors.As(err, &usage) {
			return ExitUsageError
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

type usageError struct{ error }

func (u usageError) Unwrap() error { return u.error }

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print gentlereview version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gentlereview version %s\n", version)
	},
}
