package netutil

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/gitlab-org/request-echo/metrics"
)

var errKeepaliveNotSupported = errors.New("keepalive not supported")

// Limiter is a pool of connection slots shared by every listener it wraps.
// A nil *Limiter imposes no limit.
type Limiter struct {
	sem                  chan struct{}
	concurrentConnsCount prometheus.Gauge
	waitingConnsCount    prometheus.Gauge
}

// NewLimiter creates a Limiter with n slots reporting to the default
// connection metrics. It returns nil when n is zero.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		return nil
	}

	return NewLimiterWithMetrics(n,
		metrics.LimitListenerMaxConns,
		metrics.LimitListenerConcurrentConns,
		metrics.LimitListenerWaitingConns,
	)
}

// NewLimiterWithMetrics creates a Limiter reporting to the given gauges
func NewLimiterWithMetrics(n int, maxConnsCount, concurrentConnsCount, waitingConnsCount prometheus.Gauge) *Limiter {
	maxConnsCount.Set(float64(n))

	return &Limiter{
		sem:                  make(chan struct{}, n),
		concurrentConnsCount: concurrentConnsCount,
		waitingConnsCount:    waitingConnsCount,
	}
}

// Limit returns a Listener that accepts a connection from listener only once
// a slot of the shared pool is free. Based on https://godoc.org/golang.org/x/net/netutil
func (lim *Limiter) Limit(listener net.Listener) net.Listener {
	if lim == nil {
		return listener
	}

	return &sharedLimitListener{
		Listener: listener,
		limiter:  lim,
		done:     make(chan struct{}),
	}
}

type sharedLimitListener struct {
	net.Listener
	closeOnce sync.Once
	limiter   *Limiter
	done      chan struct{} // closed by Close
}

// acquire returns false if the listener was closed while waiting for a slot
func (l *sharedLimitListener) acquire() bool {
	l.limiter.waitingConnsCount.Inc()
	defer l.limiter.waitingConnsCount.Dec()

	select {
	case <-l.done:
		return false
	case l.limiter.sem <- struct{}{}:
		l.limiter.concurrentConnsCount.Inc()
		return true
	}
}

func (l *sharedLimitListener) release() {
	<-l.limiter.sem
	l.limiter.concurrentConnsCount.Dec()
}

func (l *sharedLimitListener) Accept() (net.Conn, error) {
	acquired := l.acquire()
	// a closed listener returns from Accept immediately
	c, err := l.Listener.Accept()
	if err != nil {
		if acquired {
			l.release()
		}
		return nil, err
	}

	tcpConn, _ := c.(*net.TCPConn)

	return &sharedLimitListenerConn{
		Conn:    c,
		tcpConn: tcpConn,
		release: l.release,
	}, nil
}

func (l *sharedLimitListener) Close() error {
	err := l.Listener.Close()
	l.closeOnce.Do(func() { close(l.done) })
	return err
}

type sharedLimitListenerConn struct {
	net.Conn
	tcpConn     *net.TCPConn
	releaseOnce sync.Once
	release     func()
}

func (c *sharedLimitListenerConn) Close() error {
	err := c.Conn.Close()
	c.releaseOnce.Do(c.release)
	return err
}

func (c *sharedLimitListenerConn) SetKeepAlive(enabled bool) error {
	if c.tcpConn == nil {
		return errKeepaliveNotSupported
	}

	return c.tcpConn.SetKeepAlive(enabled)
}

func (c *sharedLimitListenerConn) SetKeepAlivePeriod(period time.Duration) error {
	if c.tcpConn == nil {
		return errKeepaliveNotSupported
	}

	return c.tcpConn.SetKeepAlivePeriod(period)
}
