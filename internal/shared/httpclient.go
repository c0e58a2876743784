package shared

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client for outbound provider calls. Dialing and the
// TLS handshake are bounded by connectTimeout; a positive headerTimeout caps
// the wait for response headers. Whole-call deadlines come from the request
// context.
func NewHTTPClient(connectTimeout, headerTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
