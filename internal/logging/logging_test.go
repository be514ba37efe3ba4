package logging

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	testlog "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/correlation"
)

func TestGetExtraLogFields(t *testing.T) {
	tests := []struct {
		name          string
		scheme        string
		tls           bool
		host          string
		expectedHTTPS bool
	}{
		{
			name:          "https",
			tls:           true,
			host:          "githost.io",
			expectedHTTPS: true,
		},
		{
			name:          "forwarded_https",
			scheme:        "https",
			host:          "githost.io",
			expectedHTTPS: true,
		},
		{
			name:   "http",
			scheme: "http",
			host:   "githost.io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", "/", nil)
			require.NoError(t, err)

			req.URL.Scheme = tt.scheme
			req.Host = tt.host
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			req = req.WithContext(correlation.ContextWithCorrelation(req.Context(), "abc"))

			got := extraFields(req)
			require.Equal(t, tt.expectedHTTPS, got["echo_https"])
			require.Equal(t, tt.host, got["echo_host"])
			require.Equal(t, "abc", got["correlation_id"])
		})
	}
}

func TestLogRequest(t *testing.T) {
	hook := testlog.NewGlobal()

	r := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
	LogRequest(r).Info("hello")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "hello", entry.Message)
	require.Equal(t, "example.com", entry.Data["host"])
	require.Equal(t, "/foo", entry.Data["path"])
}

func TestBasicAccessLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			handler, err := BasicAccessLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}), format)
			require.NoError(t, err)

			ww := httptest.NewRecorder()
			handler.ServeHTTP(ww, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusNoContent, ww.Code)
		})
	}
}
