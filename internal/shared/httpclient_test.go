package shared

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientBoundsHandshake(t *testing.T) {
	hc := NewHTTPClient(2*time.Second, 5*time.Second)

	tr, ok := hc.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.DialContext)
	assert.Equal(t, 2*time.Second, tr.TLSHandshakeTimeout)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
	assert.Zero(t, hc.Timeout, "call deadlines come from the request context")
}

func TestNewHTTPClientDialTimeout(t *testing.T) {
	hc := NewHTTPClient(50*time.Millisecond, 0)
	tr := hc.Transport.(*http.Transport)

	// 10.255.255.1 is non-routable, so the dial hangs until the dialer gives up.
	start := time.Now()
	_, err := tr.DialContext(context.Background(), "tcp", net.JoinHostPort("10.255.255.1", "81"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
