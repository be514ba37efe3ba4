package httperrors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	testlog "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestGenerateErrorHTML(t *testing.T) {
	c := content{
		status:    http.StatusTeapot,
		title:     "Title",
		header:    "Header test",
		subHeader: "subheader text",
	}

	actual := generateErrorHTML(c)
	require.Contains(t, actual, c.title)
	require.Contains(t, actual, "418")
	require.Contains(t, actual, c.header)
	require.Contains(t, actual, c.subHeader)
}

func TestServeErrorPages(t *testing.T) {
	tests := map[string]struct {
		serve   func(http.ResponseWriter)
		content content
	}{
		"405": {serve: Serve405, content: content405},
		"414": {serve: Serve414, content: content414},
		"429": {serve: Serve429, content: content429},
		"500": {serve: Serve500, content: content500},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.serve(w)

			require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			require.Equal(t, tt.content.status, w.Code)
			require.Contains(t, w.Body.String(), tt.content.title)
			require.Contains(t, w.Body.String(), strconv.Itoa(tt.content.status))
			require.Contains(t, w.Body.String(), tt.content.header)
			require.Contains(t, w.Body.String(), tt.content.subHeader)
		})
	}
}

func TestServe500WithRequest(t *testing.T) {
	hook := testlog.NewGlobal()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)

	Serve500WithRequest(w, r, "serving failed", errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), content500.header)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "serving failed", entry.Message)
	require.Equal(t, "/foo", entry.Data["path"])
	require.EqualError(t, entry.Data["error"].(error), "boom")
}
