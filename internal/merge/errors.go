package merge

import (
	"errors"
	"fmt"
)

// ErrNoDatabasesToMerge is returned when no candidate survives validation
var ErrNoDatabasesToMerge = errors.New("no databases to merge")

// AttachError reports that a source could not be attached to the target
type AttachError struct {
	Source string
	Alias  string
	Err    error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach %s as %s: %v", e.Source, e.Alias, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

// TableMergeError reports a failed insert-select for one table of one source
type TableMergeError struct {
	Source string
	Table  string
	Err    error
}

func (e *TableMergeError) Error() string {
	return fmt.Sprintf("merge table %s from %s: %v", e.Table, e.Source, e.Err)
}

func (e *TableMergeError) Unwrap() error { return e.Err }
