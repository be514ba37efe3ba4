package wsgi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	app := AppFunc(func(env Environ, start StartResponse) ([][]byte, error) {
		if err := start("201 Created", []Header{{Name: "X-Test", Value: "1"}}); err != nil {
			return nil, err
		}

		return [][]byte{[]byte("a"), []byte("bc")}, nil
	})

	resp, err := Run(app, Environ{})
	require.NoError(t, err)
	require.Equal(t, "201 Created", resp.Status)
	require.Equal(t, 201, resp.Code)
	require.Equal(t, []Header{{Name: "X-Test", Value: "1"}}, resp.Headers)
	require.Equal(t, [][]byte{[]byte("a"), []byte("bc")}, resp.Body)
	require.Equal(t, int64(3), resp.ContentLength())
}

func TestRunErrors(t *testing.T) {
	errApp := errors.New("app failed")

	tests := map[string]struct {
		app         AppFunc
		expectedErr error
		errContains string
	}{
		"app_error": {
			app: func(Environ, StartResponse) ([][]byte, error) {
				return nil, errApp
			},
			expectedErr: errApp,
		},
		"start_not_called": {
			app: func(Environ, StartResponse) ([][]byte, error) {
				return [][]byte{[]byte("body")}, nil
			},
			expectedErr: errStartResponseNotCalled,
		},
		"start_called_twice": {
			app: func(_ Environ, start StartResponse) ([][]byte, error) {
				if err := start("200 OK", nil); err != nil {
					return nil, err
				}

				return nil, start("200 OK", nil)
			},
			expectedErr: errStartResponseCalledTwice,
		},
		"malformed_status": {
			app: func(_ Environ, start StartResponse) ([][]byte, error) {
				return nil, start("OK", nil)
			},
			errContains: "malformed status line",
		},
		"panic": {
			app: func(Environ, StartResponse) ([][]byte, error) {
				panic("boom")
			},
			errContains: "application panic: boom",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := Run(tt.app, Environ{})
			require.Nil(t, resp)
			require.Error(t, err)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			}
			if tt.errContains != "" {
				require.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]struct {
		status       string
		expectedCode int
		expectErr    bool
	}{
		"ok":               {status: "200 OK", expectedCode: 200},
		"multi_word":       {status: "404 Not Found", expectedCode: 404},
		"no_reason":        {status: "200", expectErr: true},
		"empty_reason":     {status: "200 ", expectErr: true},
		"non_numeric_code": {status: "2x0 OK", expectErr: true},
		"short_code":       {status: "20 OK", expectErr: true},
		"code_too_low":     {status: "099 Low", expectErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			code, err := ParseStatus(tt.status)
			if tt.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectedCode, code)
		})
	}
}
