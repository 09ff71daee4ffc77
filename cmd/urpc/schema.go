package main

import (
	"context"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [namespace]",
	Short: "List the entities a caller can see",
	Long: `Introspect the schema tree in-process.

Without --vars this prints the schema.loadFull descriptors. With --vars it
prints the current value of every visible variable. A namespace limits the
listing to one subtree.

Examples:
  urpc schema
  urpc schema object --output json
  urpc schema --vars --caller '{"isAdmin":true}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().Bool("vars", false, "print variable values instead of descriptors")
	addCallerFlag(schemaCmd)
	addOutputFlags(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	caller, err := getCaller(cmd)
	if err != nil {
		return err
	}

	app, err := newLocalApp()
	if err != nil {
		return err
	}
	defer app.Close()

	namespace := ""
	if len(args) > 0 {
		namespace = args[0]
	}

	ctx := context.Background()
	f := getFormatter(cmd)
	opts := getFormatOptions(cmd)
	out := cmd.OutOrStdout()

	if vars, _ := cmd.Flags().GetBool("vars"); vars {
		values, err := app.Runtime.LoadVars(ctx, namespace, caller)
		if err != nil {
			f.FormatError(cmd.ErrOrStderr(), err)
			return err
		}
		return f.FormatVars(out, values, opts)
	}

	descriptors, err := app.Runtime.LoadFull(ctx, namespace, caller)
	if err != nil {
		f.FormatError(cmd.ErrOrStderr(), err)
		return err
	}
	return f.FormatDescriptors(out, descriptors, opts)
}
