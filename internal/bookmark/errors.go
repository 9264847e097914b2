package bookmark

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies why a count could not be determined.
type ErrorKind int

// Lookup failure kinds.
const (
	KindTimeout ErrorKind = iota + 1
	KindTransport
	KindStatus
	KindMalformed
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// LookupError reports an unknown bookmark count.
type LookupError struct {
	URL        string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bookmark lookup %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("bookmark lookup %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *LookupError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}
