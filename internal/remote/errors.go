package remote

import "fmt"

// StatusError reports a non-retryable server response.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d for %s", e.Status, e.URL)
}

// TransportError reports a network-layer failure that survived the internal
// retry.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
