package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented signals the pricing service does not provide the
	// requested capability (HTTP 404/501). P&L metrics fall back to the local
	// approximation; Greeks cannot.
	ErrNotImplemented = errors.New("not implemented by pricing service")

	// ErrUnavailable signals the pricing service could not be reached at all
	// (transport failure, timeout). Treated the same as ErrNotImplemented for
	// fallback routing.
	ErrUnavailable = errors.New("pricing service unavailable")

	// ErrRemote covers every other non-2xx response; callers retry.
	ErrRemote = errors.New("pricing service error")

	// ErrMissingInputs signals a local calculation was requested without
	// premium or mark price. Retrying cannot produce missing local data.
	ErrMissingInputs = errors.New("missing premium or mark price")

	ErrValidation = errors.New("invalid position")
)
