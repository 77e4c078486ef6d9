package db

import "fmt"

// IntrospectionError reports that catalog metadata could not be read
type IntrospectionError struct {
	Path  string
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("introspect %s table %s: %v", e.Path, e.Table, e.Err)
	}
	return fmt.Sprintf("introspect %s: %v", e.Path, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// NormalizeError reports a failed table rewrite. Step names the statement
// that failed; the table is left as it was before the rewrite began.
type NormalizeError struct {
	Path  string
	Table string
	Step  string
	Err   error
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s table %s (%s): %v", e.Path, e.Table, e.Step, e.Err)
}

func (e *NormalizeError) Unwrap() error { return e.Err }
