package fetcher

import "fmt"

// FetchFailedError is returned when every attempt for a URL was retryable and
// the retry budget ran out.
type FetchFailedError struct {
	URL      string
	Attempts int
	// Status is the last HTTP status observed, or 0 when the last attempt failed
	// before a response arrived.
	Status int
	Err    error
}

func (e *FetchFailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempts: last status %d", e.URL, e.Attempts, e.Status)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response from FetchJSON or FetchText.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Status, e.URL)
}
