package vision

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vetcheck/internal/shared"
)

// Default provider timeouts: connect bounds dialing, read bounds a whole call.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 25 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
)

const userAgent = "VetCheck/1.0"

func newHTTPClient(connectTimeout time.Duration) *http.Client {
	return shared.NewHTTPClient(connectTimeout, DefaultReadTimeout)
}

// statusError reads a short body excerpt for non-2xx responses.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}
