package wsgi

import (
	"errors"
	"fmt"
)

// Well-known request environment keys
const (
	KeyURLScheme      = "wsgi.url_scheme"
	KeyHTTPHost       = "HTTP_HOST"
	KeyServerName     = "SERVER_NAME"
	KeyServerPort     = "SERVER_PORT"
	KeyServerProtocol = "SERVER_PROTOCOL"
	KeyScriptName     = "SCRIPT_NAME"
	KeyPathInfo       = "PATH_INFO"
	KeyQueryString    = "QUERY_STRING"
	KeyRequestMethod  = "REQUEST_METHOD"
	KeyRequestURI     = "REQUEST_URI"
	KeyRemoteAddr     = "REMOTE_ADDR"
	KeyContentType    = "CONTENT_TYPE"
	KeyContentLength  = "CONTENT_LENGTH"
	KeyHTTPS          = "HTTPS"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// ErrMissingKey is wrapped by every error caused by an incomplete environment
var ErrMissingKey = errors.New("missing request environment key")

// Environ is the per-request environment a host hands to an App. It is
// created by the host for a single request and must not be modified by
// the application.
type Environ map[string]string

// Get returns the value stored under key or an empty string
func (e Environ) Get(key string) string {
	return e[key]
}

// Require returns the value stored under key, or an error wrapping
// ErrMissingKey when the key is absent.
func (e Environ) Require(key string) (string, error) {
	v, ok := e[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}

	return v, nil
}

// Clone returns a copy that can be modified without affecting e
func (e Environ) Clone() Environ {
	c := make(Environ, len(e))
	for k, v := range e {
		c[k] = v
	}

	return c
}
