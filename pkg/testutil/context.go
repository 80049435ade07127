package testutil

import (
	"net/http"

	"invoicevault/pkg/requestcontext"
)

// WithSubject marks the request as authenticated for subject, the way the JWT
// middleware would.
func WithSubject(req *http.Request, subject string) *http.Request {
	return req.WithContext(requestcontext.WithSubject(req.Context(), subject))
}

// WithRequestID attaches a request id to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
