package provider

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// UserAgent is sent with every adapter request.
const UserAgent = "crawler/1.0 (+https://github.com/sydlexius/crawler)"

// NewHTTPClient returns the client adapters share. A nil transport uses
// http.DefaultTransport.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// RetryAfter parses the Retry-After header given in seconds. It returns 0
// when the header is absent or malformed.
func RetryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsNotFound reports whether err is or wraps an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
