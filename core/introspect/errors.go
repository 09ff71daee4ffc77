package introspect

import (
	"fmt"
	"strings"

	"github.com/dapp-works/urpc/core/schema"
)

// SchemaCycleError reports a schema whose nested resolvers loop back onto
// themselves or nest deeper than the configured limit.
type SchemaCycleError struct {
	// Chain lists the labels of the entities being resolved, outermost first.
	Chain []string

	// MaxDepth is set when the depth limit was hit rather than a cycle.
	MaxDepth int
}

// Error returns the error message.
func (e *SchemaCycleError) Error() string {
	if e.MaxDepth > 0 {
		return fmt.Sprintf("schema nesting exceeds depth %d: %s", e.MaxDepth, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("schema cycle: %s", strings.Join(e.Chain, " -> "))
}

// ErrorKind implements schema.Kinded.
func (e *SchemaCycleError) ErrorKind() schema.ErrorKind {
	return schema.ErrSchemaCycle
}
