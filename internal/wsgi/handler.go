package wsgi

import (
	"net/http"

	"gitlab.com/gitlab-org/request-echo/internal/httperrors"
	"gitlab.com/gitlab-org/request-echo/internal/logging"
)

type handler struct {
	app App
}

// NewHandler returns an http.Handler that hosts app. Every request is
// translated into an Environ, and whatever app declares is written back to
// the client. Application failures are served as 500 error pages.
func NewHandler(app App) http.Handler {
	return &handler{app: app}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := Run(h.app, FromRequest(r))
	if err != nil {
		httperrors.Serve500WithRequest(w, r, "application failed to serve request", err)
		return
	}

	for _, header := range resp.Headers {
		w.Header().Add(header.Name, header.Value)
	}
	w.WriteHeader(resp.Code)

	for _, chunk := range resp.Body {
		if _, err := w.Write(chunk); err != nil {
			logging.LogRequest(r).WithError(err).Debug("failed to write response body")
			return
		}
	}
}
