package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dapp-works/urpc/bootstrap"
	"github.com/dapp-works/urpc/core/formatter"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "urpc",
	Short: "Schema-driven RPC over HTTP and WebSocket",
	Long: `urpc exposes a tree of functions and variables to remote clients.

Clients introspect the tree with schema.loadFull, read and write variables,
run actions and methods, and edit variables with JSON Patch.

Quick start:
  urpc serve              # Start the HTTP and WebSocket server
  urpc schema             # List every visible entity
  urpc call function.call '{"method":"sum","input":{"a":1,"b":2}}'`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "urpc.yaml", "config file path")
}

// newLocalApp builds the application without starting any channel, for
// commands that dispatch in-process.
func newLocalApp() (*bootstrap.App, error) {
	return bootstrap.New(bootstrap.Options{ConfigPath: cfgFile, LogOutput: io.Discard})
}

// addCallerFlag adds the --caller flag to a command.
func addCallerFlag(cmd *cobra.Command) {
	cmd.Flags().String("caller", "", `caller context as JSON, e.g. '{"isAdmin":true}'`)
}

// getCaller parses the --caller flag.
func getCaller(cmd *cobra.Command) (schema.Caller, error) {
	raw, _ := cmd.Flags().GetString("caller")
	if strings.TrimSpace(raw) == "" {
		return schema.Caller{}, nil
	}
	var caller schema.Caller
	if err := json.Unmarshal([]byte(raw), &caller); err != nil {
		return nil, fmt.Errorf("parse --caller: %w", err)
	}
	return caller, nil
}

// addOutputFlags adds common output format flags to a command.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "O", "table", "Output format: "+strings.Join(formatter.List(), ", "))
	cmd.Flags().Bool("no-header", false, "Disable header row (table format)")
	cmd.Flags().Bool("compact", false, "Compact output (json/yaml)")
}

// getFormatter returns the formatter for the current command.
func getFormatter(cmd *cobra.Command) formatter.Formatter {
	outputFmt, _ := cmd.Flags().GetString("output")
	if outputFmt == "" {
		outputFmt = "table"
	}

	f, ok := formatter.Get(outputFmt)
	if !ok {
		return formatter.Default()
	}
	return f
}

// getFormatOptions builds format options from command flags.
func getFormatOptions(cmd *cobra.Command) formatter.FormatOptions {
	noHeader, _ := cmd.Flags().GetBool("no-header")
	compact, _ := cmd.Flags().GetBool("compact")

	return formatter.FormatOptions{
		NoHeader: noHeader,
		Compact:  compact,
		MaxWidth: 60,
	}
}
