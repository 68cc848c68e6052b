package fetch

import "fmt"

// StatusError is a non-2xx response. The snippet keeps the first bytes
// of the body for log context.
type StatusError struct {
	URL        string
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Snippet)
}

// ContentTypeError is a response whose Content-Type does not match the
// typed accessor that requested it.
type ContentTypeError struct {
	URL  string
	Want string
	Got  string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("%s responded with content type %q, want %s", e.URL, e.Got, e.Want)
}
