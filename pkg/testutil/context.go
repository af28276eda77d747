package testutil

import (
	"net/http"

	"certify/pkg/domain"
	"certify/pkg/requestcontext"
)

// WithCaller places an authenticated caller on the request, the way the auth
// middleware does. Invalid addresses leave the request anonymous.
func WithCaller(req *http.Request, address string) *http.Request {
	a, err := domain.ParseAddress(address)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), a))
}

// WithRequestID sets the request id seen by handlers and loggers.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
