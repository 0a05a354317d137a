package errors

import "errors"

var (
	ErrParse             = errors.New("malformed change envelope")
	ErrDependencyTimeout = errors.New("dependency not available within wait budget")
	ErrUnknownCommand    = errors.New("no command registered for envelope")
	ErrInvalidDirection  = errors.New("invalid flow direction")
)
