package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Logic-program errors. These are fatal for the rule or proof that
	// raised them and are never retried.
	ErrSyntax         = errors.New("syntax error")
	ErrUnboundFeature = errors.New("unbound variable in feature")
	ErrMachine        = errors.New("abstract machine fault")
)
