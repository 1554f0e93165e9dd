package schema

import (
	"fmt"
	"strings"

	"github.com/starford/craftmd/internal/models"
)

// ViolationError describes which part of a record broke the schema.
type ViolationError struct {
	Record   string
	ID       string
	Type     models.SemanticType
	Location string
	Keys     []string
	Detail   string
}

func (e *ViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", ErrSchemaViolation, e.Record, e.ID)
	if e.Type != "" {
		fmt.Fprintf(&b, " (%s)", e.Type)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " %s", e.Location)
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, ": unexpected keys %s", strings.Join(e.Keys, ", "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrSchemaViolation.
func (e *ViolationError) Unwrap() error {
	return ErrSchemaViolation
}
