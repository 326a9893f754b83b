package domain

import "errors"

// Error kinds. None of them is fatal to the running process; callers wrap
// them with context and test with errors.Is.
var (
	// ErrNetwork is a fetch failure or a non-success HTTP status.
	ErrNetwork = errors.New("network error")
	// ErrGeometry marks a hazard with missing or malformed geometry.
	ErrGeometry = errors.New("geometry error")
	// ErrCache is a storage failure. Cache errors are advisory.
	ErrCache = errors.New("cache error")
	// ErrUnsupported means a host capability (persistent caching) is absent.
	ErrUnsupported = errors.New("unsupported capability")
)
