package studio

import "errors"

var (
	errMissingKey  = errors.New("missing option key")
	errUnknownType = errors.New("unknown message type")

	// ErrSuperseded is returned when the preview was closed while it was
	// being opened
	ErrSuperseded = errors.New("preview closed while opening")
	// ErrNotInitialized is returned by operations that need a session
	ErrNotInitialized = errors.New("visual editor not initialized")
)
