package healthcheck

import (
	"net/http"
)

// NewMiddleware answers requests for statusPath itself and passes the rest
// to handler. An empty statusPath disables the check.
func NewMiddleware(handler http.Handler, statusPath string) http.Handler {
	if statusPath == "" {
		return handler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == statusPath {
			Handler().ServeHTTP(w, r)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// Handler reports the process as alive. The status response never reaches
// the echo application so it leaves no diagnostic line behind.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("success\n"))
	})
}
