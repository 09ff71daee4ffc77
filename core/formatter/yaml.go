package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dapp-works/urpc/core/schema"
	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatDescriptors formats descriptors as YAML.
func (f *YAMLFormatter) FormatDescriptors(w io.Writer, descriptors []schema.Descriptor, opts FormatOptions) error {
	output := map[string]any{
		"count":    len(descriptors),
		"entities": descriptors,
	}
	return f.encode(w, output)
}

// FormatVars formats a variable listing as YAML.
func (f *YAMLFormatter) FormatVars(w io.Writer, vars []schema.VarValue, opts FormatOptions) error {
	output := map[string]any{
		"count":     len(vars),
		"variables": vars,
	}
	return f.encode(w, output)
}

// FormatResult formats a call result as YAML.
func (f *YAMLFormatter) FormatResult(w io.Writer, result any, opts FormatOptions) error {
	return f.encode(w, map[string]any{"result": result})
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if kind := schema.KindOf(err); kind != "" {
		output["kind"] = string(kind)
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer. Values go through their JSON form first
// so field names follow the json tags clients already see on the wire.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(generic)
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
