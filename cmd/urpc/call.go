package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dapp-works/urpc/core/runtime"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <name> [params-json]",
	Short: "Dispatch one operation in-process",
	Long: `Dispatch an operation against the configured store without a server.

The name is an operation such as function.call, variable.get, variable.set,
variable.action, variable.call or variable.patch. Params are the JSON object
the operation expects.

Examples:
  urpc call function.call '{"method":"sum","input":{"a":1,"b":2}}'
  urpc call variable.get '{"name":"data"}' --output json
  urpc call variable.patch '{"name":"data","ops":[{"op":"add","path":"/bar","value":1}]}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	addCallerFlag(callCmd)
	addOutputFlags(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	caller, err := getCaller(cmd)
	if err != nil {
		return err
	}

	var params json.RawMessage
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("params must be valid JSON")
		}
		params = json.RawMessage(args[1])
	}

	app, err := newLocalApp()
	if err != nil {
		return err
	}
	defer app.Close()

	f := getFormatter(cmd)
	result, err := app.Runtime.Handle(context.Background(), runtime.Request{
		Name:   args[0],
		Params: params,
		Caller: caller,
	})
	if err != nil {
		f.FormatError(cmd.ErrOrStderr(), err)
		return err
	}
	return f.FormatResult(cmd.OutOrStdout(), result, getFormatOptions(cmd))
}
