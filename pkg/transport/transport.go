// Package transport builds the HTTP clients shared by the outbound API
// integrations (Shopify and Google Sheets).
package transport

import (
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "ordersync"

// NewTransport returns a pooled HTTP transport with bounded dial and
// handshake times.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// NewClient returns a client over NewTransport that stamps userAgent on
// requests that do not set one. A zero timeout means no overall timeout.
func NewClient(timeout time.Duration, userAgent string) *http.Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentRT{inner: NewTransport(), userAgent: userAgent},
	}
}

type userAgentRT struct {
	inner     http.RoundTripper
	userAgent string
}

func (rt *userAgentRT) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return rt.inner.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.inner.RoundTrip(clone)
}
