package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"
)

// serverError marks a 5xx response as a breaker failure while the response
// itself is still handed to the caller.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

type transport struct {
	breaker *Breaker
	next    http.RoundTripper
}

// NewTransport wraps next so every round trip passes through b.
// Transport errors and 5xx responses count as failures. A nil b returns next.
func NewTransport(b *Breaker, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if b == nil {
		return next
	}
	return &transport{breaker: b, next: next}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &serverError{status: resp.StatusCode}
		}
		return resp, nil
	})

	var se *serverError
	if errors.As(err, &se) {
		return res.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
