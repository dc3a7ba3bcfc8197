package model

import "errors"

// Sentinel errors for the conversion pipeline. Parsing and consistency
// problems are normally collected into a ValidationReport; these sentinels
// surface only when a caller invokes a stage on input that should have been
// filtered upstream, or when I/O genuinely fails.
var (
	ErrLayoutParse          = errors.New("description document could not be parsed into a usable table")
	ErrLayoutConsistency    = errors.New("layout failed consistency validation")
	ErrNoMatch              = errors.New("no file-layout pairing found")
	ErrRecordLengthMismatch = errors.New("declared record length differs from observed record length")
	ErrValidationFailed     = errors.New("post-decode validation failed")
)
