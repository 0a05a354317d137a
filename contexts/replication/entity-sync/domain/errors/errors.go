package errors

import "errors"

var (
	// ErrDuplicateApply means the envelope's unique identifier is already in
	// the ledger. Callers treat it as success.
	ErrDuplicateApply     = errors.New("envelope already applied")
	ErrTranslationMissing = errors.New("no mapping for referenced entity")
	ErrInvalidPayload     = errors.New("invalid entity payload")
	ErrUnsupportedFlow    = errors.New("operation not supported in this flow direction")
	ErrMappingNotFound    = errors.New("mapping not found")
)
