package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkError reports a fetch that did not produce a usable page
type NetworkError struct {
	URL     string
	Status  int // HTTP status, zero when no response arrived
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request timed out: %s", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("HTTP error %d: %s", e.Status, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("network error: %s", e.URL)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a timed-out fetch
func IsTimeout(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Timeout {
		return true
	}
	return isTimeoutCause(err)
}

func isTimeoutCause(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ErrUnsupportedContent is wrapped when the response body is not markup
var ErrUnsupportedContent = errors.New("unsupported content type")

// ErrBodyTooLarge is wrapped when the response body exceeds the size cap
var ErrBodyTooLarge = errors.New("response body too large")
