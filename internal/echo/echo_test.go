package echo

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
	"gitlab.com/gitlab-org/request-echo/metrics"
)

type startCall struct {
	status  string
	headers []wsgi.Header
}

type startRecorder struct {
	calls []startCall
}

func (s *startRecorder) start(status string, headers []wsgi.Header) error {
	s.calls = append(s.calls, startCall{status: status, headers: headers})
	return nil
}

func exampleEnv(path, query string) wsgi.Environ {
	return wsgi.Environ{
		wsgi.KeyURLScheme:     "http",
		wsgi.KeyHTTPHost:      "example.com",
		wsgi.KeyServerName:    "example.com",
		wsgi.KeyServerPort:    "80",
		wsgi.KeyRequestMethod: http.MethodGet,
		wsgi.KeyPathInfo:      path,
		wsgi.KeyQueryString:   query,
	}
}

func TestServe(t *testing.T) {
	tests := map[string]struct {
		path         string
		query        string
		expectedURI  string
		expectedDiag string
	}{
		"with_query": {
			path:         "/foo",
			query:        "bar=1",
			expectedURI:  "http://example.com/foo?bar=1",
			expectedDiag: "Request http://example.com/foo?bar=1\n\n",
		},
		"root_without_query": {
			path:         "/",
			expectedURI:  "http://example.com/",
			expectedDiag: "Request http://example.com/\n\n",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out := &bytes.Buffer{}
			rec := &startRecorder{}

			body, err := New(WithOutput(out)).Serve(exampleEnv(tt.path, tt.query), rec.start)
			require.NoError(t, err)

			require.Equal(t, [][]byte{[]byte("Hello World\n"), []byte(tt.expectedURI + "\n")}, body)
			require.Equal(t, tt.expectedDiag, out.String())
			require.Equal(t, []startCall{{
				status:  "200 OK",
				headers: []wsgi.Header{{Name: "Content-Type", Value: "text/plain"}},
			}}, rec.calls)
		})
	}
}

func TestServeIsIdempotent(t *testing.T) {
	h := New(WithOutput(io.Discard))
	env := exampleEnv("/foo", "bar=1")

	first, second := &startRecorder{}, &startRecorder{}

	firstBody, err := h.Serve(env, first.start)
	require.NoError(t, err)

	secondBody, err := h.Serve(env, second.start)
	require.NoError(t, err)

	require.Equal(t, firstBody, secondBody)
	require.Equal(t, first.calls, second.calls)
}

func TestServeWithIncompleteEnvironment(t *testing.T) {
	out := &bytes.Buffer{}
	rec := &startRecorder{}

	body, err := New(WithOutput(out)).Serve(wsgi.Environ{wsgi.KeyHTTPHost: "example.com"}, rec.start)
	require.ErrorIs(t, err, wsgi.ErrMissingKey)
	require.Nil(t, body)
	require.Empty(t, rec.calls)
	require.Empty(t, out.String())
}

func TestServeCountsRequests(t *testing.T) {
	before := testutil.ToFloat64(metrics.EchoedRequests)

	_, err := New(WithOutput(io.Discard)).Serve(exampleEnv("/", ""), (&startRecorder{}).start)
	require.NoError(t, err)

	require.Equal(t, before+1, testutil.ToFloat64(metrics.EchoedRequests))
}

func TestServeThroughHTTPGateway(t *testing.T) {
	out := &bytes.Buffer{}
	handler := wsgi.NewHandler(New(WithOutput(out)))

	ww := httptest.NewRecorder()
	rr := httptest.NewRequest(http.MethodGet, "http://example.com/foo?bar=1", nil)

	handler.ServeHTTP(ww, rr)

	res := ww.Result()
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "text/plain", res.Header.Get("Content-Type"))
	require.Equal(t, "Hello World\nhttp://example.com/foo?bar=1\n", string(body))
	require.Equal(t, "Request http://example.com/foo?bar=1\n\n", out.String())
}

var errWrite = errors.New("write failed")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errWrite
}

func TestServeWithFailingOutput(t *testing.T) {
	rec := &startRecorder{}

	body, err := New(WithOutput(failingWriter{})).Serve(exampleEnv("/", ""), rec.start)
	require.ErrorIs(t, err, errWrite)
	require.Nil(t, body)
	require.Empty(t, rec.calls)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func TestServeConcurrently(t *testing.T) {
	const requests = 50

	out := &lockedBuffer{}
	h := New(WithOutput(out))
	env := exampleEnv("/foo", "bar=1")

	bodies := make([][][]byte, requests)
	errs := make([]error, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i], errs[i] = h.Serve(env, (&startRecorder{}).start)
		}(i)
	}
	wg.Wait()

	expected := [][]byte{[]byte("Hello World\n"), []byte("http://example.com/foo?bar=1\n")}
	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, expected, bodies[i])
	}

	require.Equal(t,
		strings.Repeat("Request http://example.com/foo?bar=1\n\n", requests),
		out.buf.String(),
	)
}
