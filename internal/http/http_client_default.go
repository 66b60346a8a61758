package http

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient creates a new HTTP client with sane connection defaults.
// No request timeout is set; callers control cancellation via the
// request context.
func NewHTTPClient() HTTPClient {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
