package uwsgi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/log"

	"gitlab.com/gitlab-org/request-echo/internal/errortracking"
	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
	"gitlab.com/gitlab-org/request-echo/metrics"
)

const (
	// DefaultMaxBodySize bounds how much of a request body is read and discarded
	DefaultMaxBodySize = 10 * 1024 * 1024

	keySchemeOverride = "UWSGI_SCHEME"
	keyRequestID      = "HTTP_X_REQUEST_ID"

	acceptRetryDelay = 5 * time.Millisecond
)

// ErrServerClosed is returned by Serve after a call to Shutdown
var ErrServerClosed = errors.New("uwsgi: server closed")

// Server hosts a wsgi.App behind the uwsgi protocol. Every connection
// carries exactly one request.
type Server struct {
	App          wsgi.App
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodySize  int64

	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	inShutdown bool
	conns      sync.WaitGroup
}

// Serve accepts connections on l until l is closed or Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l) {
		l.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(l)

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}

			return err
		}

		if !s.trackConn() {
			conn.Close()
			return ErrServerClosed
		}

		go func() {
			defer s.conns.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown closes all listeners and waits for in-flight requests to
// finish or for ctx to be done
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.inShutdown = true
	for l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) trackListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inShutdown {
		return false
	}

	if s.listeners == nil {
		s.listeners = make(map[net.Listener]struct{})
	}
	s.listeners[l] = struct{}{}

	return true
}

// trackConn registers an accepted connection unless Shutdown has started.
// conns.Add must happen under s.mu, before Shutdown calls conns.Wait.
func (s *Server) trackConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inShutdown {
		return false
	}
	s.conns.Add(1)

	return true
}

func (s *Server) untrackListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, l)
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inShutdown
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	start := time.Now()

	if s.ReadTimeout > 0 {
		conn.SetReadDeadline(start.Add(s.ReadTimeout))
	}

	br := bufio.NewReader(conn)

	env, err := ReadEnviron(br)
	if err != nil {
		metrics.UWSGIPacketErrors.Inc()
		log.WithError(err).WithField("remote_addr", conn.RemoteAddr().String()).Warn("failed to read uwsgi packet")
		return
	}

	s.discardBody(br, env)
	env[wsgi.KeyURLScheme] = scheme(env)

	logger := log.WithFields(log.Fields{
		"correlation_id": requestID(env),
		"remote_addr":    conn.RemoteAddr().String(),
		"method":         env.Get(wsgi.KeyRequestMethod),
		"uri":            env.Get(wsgi.KeyRequestURI),
	})

	resp, err := wsgi.Run(s.App, env)
	if err != nil {
		logger.WithError(err).Error("application failed to serve uwsgi request")
		errortracking.CaptureErrWithStackTrace(err, errortracking.WithField("uri", env.Get(wsgi.KeyRequestURI)))
		resp = internalServerError()
	}

	if s.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}

	if err := writeResponse(conn, env, resp); err != nil {
		logger.WithError(err).Debug("failed to write uwsgi response")
	}

	code := strconv.Itoa(resp.Code)
	metrics.UWSGIRequests.WithLabelValues(code).Inc()
	metrics.UWSGIRequestDuration.WithLabelValues(code).Observe(time.Since(start).Seconds())
}

// discardBody reads the request body so the peer does not see the
// connection reset while it is still writing
func (s *Server) discardBody(r io.Reader, env wsgi.Environ) {
	size, err := strconv.ParseInt(env.Get(wsgi.KeyContentLength), 10, 64)
	if err != nil || size <= 0 {
		return
	}

	limit := s.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if size > limit {
		size = limit
	}

	io.CopyN(io.Discard, r, size)
}

func scheme(env wsgi.Environ) string {
	if s := env.Get(keySchemeOverride); s == wsgi.SchemeHTTP || s == wsgi.SchemeHTTPS {
		return s
	}

	if env.Get(wsgi.KeyHTTPS) == "on" {
		return wsgi.SchemeHTTPS
	}

	return wsgi.SchemeHTTP
}

func requestID(env wsgi.Environ) string {
	if id := env.Get(keyRequestID); id != "" {
		return id
	}

	return correlation.SafeRandomID()
}

func internalServerError() *wsgi.Response {
	return &wsgi.Response{
		Status:  "500 Internal Server Error",
		Code:    http.StatusInternalServerError,
		Headers: []wsgi.Header{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}},
		Body:    [][]byte{[]byte("Internal Server Error\n")},
	}
}

func writeResponse(w io.Writer, env wsgi.Environ, resp *wsgi.Response) error {
	header := make(http.Header, len(resp.Headers))
	for _, h := range resp.Headers {
		header.Add(h.Name, h.Value)
	}

	res := &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.Code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: resp.ContentLength(),
		Body:          io.NopCloser(bytes.NewReader(bytes.Join(resp.Body, nil))),
		Close:         true,
		Request:       &http.Request{Method: env.Get(wsgi.KeyRequestMethod)},
	}

	bw := bufio.NewWriter(w)
	if err := res.Write(bw); err != nil {
		return err
	}

	return bw.Flush()
}
