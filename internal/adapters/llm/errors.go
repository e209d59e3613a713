package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/kline/internal/adapters/narrative"
)

// Sentinel error kinds for this package.
var (
	ErrUnknownProvider  = errors.New("unknown backend provider")
	ErrIncompleteConfig = errors.New("incomplete backend config")
)

// statusError classifies a non-2xx response.
func statusError(provider string, code int, body []byte) error {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	kind := narrative.ErrTransport
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		kind = narrative.ErrAuth
	}
	return fmt.Errorf("%w: %s returned %d: %s", kind, provider, code, body)
}
