// Package common holds helpers shared by supplier adapters.
package common

import "fmt"

// ShapeError reports a supplier payload that does not match the schema
// the adapter expects. It marks one skipped candidate or one failed
// search round, never a fatal condition for the overall search.
type ShapeError struct {
	Supplier string
	Detail   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected %s payload: %s", e.Supplier, e.Detail)
}

// Shapef builds a ShapeError with a formatted detail.
func Shapef(supplier, format string, args ...any) *ShapeError {
	return &ShapeError{Supplier: supplier, Detail: fmt.Sprintf(format, args...)}
}
