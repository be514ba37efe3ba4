package rejectmethods

import (
	"net/http"

	"gitlab.com/gitlab-org/labkit/log"

	"gitlab.com/gitlab-org/request-echo/internal/httperrors"
	"gitlab.com/gitlab-org/request-echo/internal/logging"
)

var acceptedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// NewMiddleware returns middleware which rejects all unknown http methods
func NewMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptedMethods[r.Method] {
			logging.LogRequest(r).WithFields(log.Fields{"method": r.Method}).Debug("rejected unknown method")
			httperrors.Serve405(w)
			return
		}

		handler.ServeHTTP(w, r)
	})
}
