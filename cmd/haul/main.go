package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/justapithecus/haul/haul"
)

var logger zerolog.Logger

// Global flags shared by every command.
var (
	flagRegion    string
	flagEndpoint  string
	flagPathStyle bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "haul",
	Short: "Presigning and transfer tool for S3-compatible object storage",
	Long: "haul generates presigned URLs and POST forms, and moves objects to and " +
		"from S3-compatible storage with multipart transfers and per-part retry.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = setupLogger(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "Signing region (default: from AWS config)")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "Custom endpoint for S3-compatible services")
	rootCmd.PersistentFlags().BoolVar(&flagPathStyle, "path-style", false, "Force path-style bucket addressing")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger configures zerolog for the process.
func setupLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).With().Timestamp().Logger().Level(level)
}

// newStorageClient builds a client from the global flags. Credentials
// come from the default AWS chain.
func newStorageClient(ctx context.Context, cfg haul.Config) (*haul.Client, error) {
	cfg.Region = flagRegion
	cfg.Endpoint = flagEndpoint
	if flagPathStyle {
		cfg.Style = haul.StylePath
	}
	return haul.New(ctx, cfg)
}

// parseObjectURL splits "s3://bucket/key" into its parts. The key may
// be empty for bucket-level commands.
func parseObjectURL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// URL: %s", raw)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket name: %s", raw)
	}
	return bucket, key, nil
}
