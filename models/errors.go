package models

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns missing from a raw file. It is fatal
// for the whole file.
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns in %s: %s", e.File, strings.Join(e.Missing, ", "))
}

// TimestampParseError reports rows whose timestamp matched none of the
// supported encodings. Partial success is not permitted, so this is fatal
// for the whole file.
type TimestampParseError struct {
	File   string
	Rows   int
	Sample string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("unparsed timestamps: %d rows in %s (first bad value %q)", e.Rows, e.File, e.Sample)
}

// ErrInsufficientSample marks an evaluation sample below the minimum size.
// Non-fatal: callers emit a record with NaN correlation fields.
var ErrInsufficientSample = errors.New("insufficient sample")

// ErrCacheExists is returned when a cache entry is already present and
// overwrite was not requested. The existing entry is authoritative.
var ErrCacheExists = errors.New("cache entry already exists")
