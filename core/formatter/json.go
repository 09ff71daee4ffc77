package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dapp-works/urpc/core/schema"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatDescriptors formats descriptors as the JSON array loadFull returns.
func (f *JSONFormatter) FormatDescriptors(w io.Writer, descriptors []schema.Descriptor, opts FormatOptions) error {
	if descriptors == nil {
		descriptors = []schema.Descriptor{}
	}
	return f.encode(w, descriptors, opts.Compact)
}

// FormatVars formats a variable listing as JSON.
func (f *JSONFormatter) FormatVars(w io.Writer, vars []schema.VarValue, opts FormatOptions) error {
	if vars == nil {
		vars = []schema.VarValue{}
	}
	return f.encode(w, vars, opts.Compact)
}

// FormatResult formats a call result as JSON.
func (f *JSONFormatter) FormatResult(w io.Writer, result any, opts FormatOptions) error {
	return f.encode(w, result, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if kind := schema.KindOf(err); kind != "" {
		output["kind"] = kind
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
