package echo

import (
	"fmt"
	"io"
	"os"

	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
	"gitlab.com/gitlab-org/request-echo/metrics"
)

const (
	status   = "200 OK"
	greeting = "Hello World\n"
)

// Option function to configure a Handler
type Option func(*Handler)

// Handler is an application that answers every request with a greeting
// followed by the full request URI. It keeps no state between requests.
type Handler struct {
	output io.Writer
}

// New creates a Handler writing its diagnostic lines to stdout unless
// configured otherwise
func New(opts ...Option) *Handler {
	h := &Handler{output: os.Stdout}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// WithOutput sets the stream that receives one diagnostic line per request
func WithOutput(w io.Writer) Option {
	return func(h *Handler) {
		h.output = w
	}
}

// Serve implements wsgi.App
func (h *Handler) Serve(env wsgi.Environ, start wsgi.StartResponse) ([][]byte, error) {
	uri, err := wsgi.RequestURI(env)
	if err != nil {
		return nil, fmt.Errorf("reconstructing request URI: %w", err)
	}

	// a single write keeps concurrent lines from being split
	if _, err := io.WriteString(h.output, "Request "+uri+"\n\n"); err != nil {
		return nil, fmt.Errorf("writing diagnostic output: %w", err)
	}

	if err := start(status, []wsgi.Header{{Name: "Content-Type", Value: "text/plain"}}); err != nil {
		return nil, err
	}

	metrics.EchoedRequests.Inc()

	return [][]byte{[]byte(greeting), []byte(uri + "\n")}, nil
}
