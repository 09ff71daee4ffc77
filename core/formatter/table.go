package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dapp-works/urpc/core/schema"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatDescriptors formats descriptors as one row per entity.
func (f *TableFormatter) FormatDescriptors(w io.Writer, descriptors []schema.Descriptor, opts FormatOptions) error {
	if len(descriptors) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "PATH\tKIND\tWRITE\tDETAIL")
	}

	for _, d := range descriptors {
		switch d := d.(type) {
		case *schema.FunctionDescriptor:
			detail := "input: " + joinKeys(d.Input)
			if d.Confirm {
				detail += " (confirm)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, d.Kind, "-", f.formatValue(detail, opts.MaxWidth))
		case *schema.VariableDescriptor:
			detail := "value: " + f.formatValue(d.Value, 0)
			if len(d.Schema) > 0 {
				detail += "; schema: " + joinKeys(d.Schema)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, d.Kind, f.formatValue(d.CanWrite, 0), f.formatValue(detail, opts.MaxWidth))
		}
	}

	return tw.Flush()
}

// FormatVars formats a variable listing as PATH/VALUE rows.
func (f *TableFormatter) FormatVars(w io.Writer, vars []schema.VarValue, opts FormatOptions) error {
	if len(vars) == 0 {
		fmt.Fprintln(w, "No variables found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "PATH\tVALUE")
	}
	for _, v := range vars {
		fmt.Fprintf(tw, "%s\t%s\n", v.Path, f.formatValue(v.Value, opts.MaxWidth))
	}
	return tw.Flush()
}

// FormatResult formats a call result. Objects print as key-value pairs.
func (f *TableFormatter) FormatResult(w io.Writer, result any, opts FormatOptions) error {
	record, ok := result.(map[string]any)
	if !ok {
		fmt.Fprintln(w, f.formatValue(result, opts.MaxWidth))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, f.formatValue(record[k], opts.MaxWidth))
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	if kind := schema.KindOf(err); kind != "" {
		fmt.Fprintf(w, "Error (%s): %s\n", kind, err.Error())
		return nil
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

func joinKeys(m map[string]any) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case []byte:
		str = "[binary]"
	case float64:
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	Register(NewTableFormatter())
}
