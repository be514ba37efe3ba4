package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
	"golang.org/x/net/http2"

	"gitlab.com/gitlab-org/request-echo/internal/uwsgi"
)

type keepAliveListener struct {
	net.Listener
	period time.Duration
}

type keepAliveSetter interface {
	SetKeepAlive(bool) error
	SetKeepAlivePeriod(time.Duration) error
}

type listenerConfig struct {
	kind      string
	listener  net.Listener
	isProxyV2 bool
	tlsConfig *tls.Config
	handler   http.Handler
}

// Accept enables keep-alive with the configured period. A zero period keeps
// the system default, a negative one disables keep-alive.
func (ln *keepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}

	kc, ok := conn.(keepAliveSetter)
	if !ok {
		return conn, nil
	}

	switch {
	case ln.period < 0:
		kc.SetKeepAlive(false)
	case ln.period > 0:
		kc.SetKeepAlive(true)
		kc.SetKeepAlivePeriod(ln.period)
	}

	return conn, nil
}

func (a *theApp) addHTTPService(config listenerConfig) error {
	server := &http.Server{
		Handler:           config.handler,
		TLSConfig:         config.tlsConfig,
		ReadTimeout:       a.config.Server.ReadTimeout,
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
		WriteTimeout:      a.config.Server.WriteTimeout,
	}

	if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
		return err
	}

	l := config.listener

	// the metrics listener is not part of the shared connection pool
	if config.kind != listenerMetrics {
		l = a.limiter.Limit(l)
	}

	l = &keepAliveListener{Listener: l, period: a.config.Server.ListenKeepAlive}

	if config.isProxyV2 {
		l = &proxyproto.Listener{
			Listener: l,
			Policy: func(upstream net.Addr) (proxyproto.Policy, error) {
				return proxyproto.REQUIRE, nil
			},
		}
	}

	if config.tlsConfig != nil {
		l = tls.NewListener(l, server.TLSConfig)
	}

	a.services = append(a.services, service{
		name:     config.kind,
		addr:     config.listener.Addr(),
		serve:    func() error { return server.Serve(l) },
		shutdown: server.Shutdown,
	})

	return nil
}

// addUWSGIServices serves every uwsgi listener from a single uwsgi.Server
func (a *theApp) addUWSGIServices(listeners []net.Listener) {
	server := &uwsgi.Server{
		App:          a.app,
		ReadTimeout:  a.config.UWSGI.ReadTimeout,
		WriteTimeout: a.config.UWSGI.WriteTimeout,
	}

	for i, l := range listeners {
		wrapped := &keepAliveListener{Listener: a.limiter.Limit(l), period: a.config.Server.ListenKeepAlive}

		s := service{
			name:  listenerUWSGI,
			addr:  l.Addr(),
			serve: func() error { return server.Serve(wrapped) },
		}

		// Shutdown closes every listener of the server, once is enough
		if i == 0 {
			s.shutdown = server.Shutdown
		} else {
			s.shutdown = func(context.Context) error { return nil }
		}

		a.services = append(a.services, s)
	}
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
