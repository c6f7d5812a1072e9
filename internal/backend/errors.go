package backend

import "errors"

var (
	// ErrDeclined is returned by Open when the URI belongs to another
	// driver, or the caller is not allowed to open this one. It is the only
	// decline that ever reaches a caller.
	ErrDeclined = errors.New("connection declined")

	// ErrUnsupported means no active adapter can serve the request.
	ErrUnsupported = errors.New("operation not supported")

	// ErrNotFound means the domain does not resolve in any active adapter.
	ErrNotFound = errors.New("domain not found")

	// ErrInvalidArgument means a caller-supplied value failed a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOpenFailed is the single error reported for a failed activation.
	ErrOpenFailed = errors.New("could not open connection")

	// ErrBackendFailure is used when an adapter fails without a diagnosis.
	ErrBackendFailure = errors.New("backend failure")
)
