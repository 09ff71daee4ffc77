package schema

// Descriptor is the serializable form of an entity returned by introspection.
// Callbacks never appear in a descriptor; clients address entities by ID or
// Path and the dispatcher resolves them again at invocation time.
type Descriptor interface {
	DescriptorKind() Kind
}

// FunctionDescriptor describes a function or action.
type FunctionDescriptor struct {
	ID       string           `json:"id"`
	Path     string           `json:"path"`
	Kind     Kind             `json:"kind"`
	Input    map[string]any   `json:"input"`
	UIHints  map[string]Hints `json:"uiHints,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Confirm  bool             `json:"confirm,omitempty"`
}

// DescriptorKind implements Descriptor.
func (d *FunctionDescriptor) DescriptorKind() Kind { return d.Kind }

// TypeInfo describes a type field of a variable schema.
type TypeInfo struct {
	ID      string         `json:"id,omitempty"`
	Kind    Kind           `json:"kind"`
	Class   string         `json:"class,omitempty"`
	Default any            `json:"defaultValue,omitempty"`
	UIHints Hints          `json:"uiHints,omitempty"`
	Schema  map[string]any `json:"schema,omitempty"`
}

// DescriptorKind implements Descriptor.
func (t *TypeInfo) DescriptorKind() Kind { return KindType }

// VariableDescriptor describes a variable and its resolved sub-schema.
// Schema values are *TypeInfo or *FunctionDescriptor.
type VariableDescriptor struct {
	ID          string         `json:"id"`
	Path        string         `json:"path"`
	Kind        Kind           `json:"kind"`
	Value       any            `json:"value"`
	CanWrite    bool           `json:"canWrite"`
	PatchPolicy PatchPolicy    `json:"patchPolicy"`
	Schema      map[string]any `json:"schema"`
	UIHints     Hints          `json:"uiHints,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DescriptorKind implements Descriptor.
func (d *VariableDescriptor) DescriptorKind() Kind { return KindVariable }

// VarValue is one entry of a lightweight variable listing.
type VarValue struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}
