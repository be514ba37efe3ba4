package uwsgi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
)

// Scheme is the URL scheme served by Transport
const Scheme = "uwsgi"

var errMissingAddress = errors.New("uwsgi: request URL has no host")

// Transport is an http.RoundTripper that sends requests to a uwsgi backend.
// The backend address is taken from req.URL.Host, the original Host header
// from req.Host.
type Transport struct {
	// DialTimeout limits how long connecting to the backend may take
	DialTimeout time.Duration
}

// RegisterProtocol makes t handle "uwsgi://" URLs
func RegisterProtocol(t *http.Transport, uwsgi *Transport) {
	t.RegisterProtocol(Scheme, uwsgi)
}

// RoundTrip implements http.RoundTripper. The request context bounds the
// whole exchange: its deadline is applied to the connection and canceling
// it closes the connection until the response body is closed.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "" {
		closeBody(req)
		return nil, errMissingAddress
	}

	ctx := req.Context()

	conn, err := t.dial(ctx, req.URL.Host)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			closeBody(req)
			conn.Close()
			return nil, err
		}
	}

	stop := closeOnDone(ctx, conn)

	if err := writeRequest(conn, req); err != nil {
		stop()
		conn.Close()
		return nil, contextError(ctx, err)
	}

	res, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		stop()
		conn.Close()
		return nil, contextError(ctx, err)
	}

	res.Body = &connClosingBody{ReadCloser: res.Body, conn: conn, stop: stop}

	return res, nil
}

// closeOnDone closes conn once ctx is done. The returned stop function
// releases the watcher and may be called more than once.
func closeOnDone(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// contextError reports the context error in place of the I/O error caused
// by the deadline or the closed connection
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}

func (t *Transport) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.DialTimeout}

	return dialer.DialContext(ctx, "tcp", addr)
}

func writeRequest(w io.Writer, req *http.Request) error {
	defer closeBody(req)

	env := wsgi.FromRequest(req)
	// the backend derives the scheme from HTTPS
	delete(env, wsgi.KeyURLScheme)

	if err := WriteEnviron(w, env); err != nil {
		return err
	}

	if req.Body == nil {
		return nil
	}

	_, err := io.Copy(w, req.Body)
	return err
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

type connClosingBody struct {
	io.ReadCloser
	conn net.Conn
	stop func()
}

func (b *connClosingBody) Close() error {
	b.stop()

	err := b.ReadCloser.Close()
	if cerr := b.conn.Close(); err == nil {
		err = cerr
	}

	return err
}
