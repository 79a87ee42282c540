package stats

import "errors"

var (
	// ErrTransport wraps a failed count query or page fetch.
	ErrTransport = errors.New("transport failure")
	// ErrTruncated is returned only when truncation is configured as fatal.
	ErrTruncated = errors.New("record set truncated at page ceiling")
)
