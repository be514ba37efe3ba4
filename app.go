package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/correlation"
	labmetrics "gitlab.com/gitlab-org/labkit/metrics"
	"golang.org/x/sync/errgroup"

	"gitlab.com/gitlab-org/request-echo/internal/config"
	cfgtls "gitlab.com/gitlab-org/request-echo/internal/config/tls"
	"gitlab.com/gitlab-org/request-echo/internal/healthcheck"
	"gitlab.com/gitlab-org/request-echo/internal/logging"
	"gitlab.com/gitlab-org/request-echo/internal/netutil"
	"gitlab.com/gitlab-org/request-echo/internal/ratelimiter"
	"gitlab.com/gitlab-org/request-echo/internal/rejectmethods"
	"gitlab.com/gitlab-org/request-echo/internal/urilimiter"
	"gitlab.com/gitlab-org/request-echo/internal/uwsgi"
	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
)

const metricsNamespace = "request_echo"

// Listener kinds, also used as the "listener" label of the HTTP metrics
const (
	listenerHTTP    = "http"
	listenerHTTPS   = "https"
	listenerProxy   = "proxy"
	listenerProxyv2 = "proxyv2"
	listenerUWSGI   = "uwsgi"
	listenerMetrics = "metrics"
)

type theApp struct {
	config      *config.Config
	app         wsgi.App
	httpMetrics labmetrics.HandlerFactory
	rateLimiter *ratelimiter.RateLimiter
	limiter     *netutil.Limiter

	services []service
}

// service is one server bound to one listener
type service struct {
	name     string
	addr     net.Addr
	serve    func() error
	shutdown func(context.Context) error
}

func newApp(cfg *config.Config, app wsgi.App, httpMetrics labmetrics.HandlerFactory) *theApp {
	a := &theApp{
		config:      cfg,
		app:         app,
		httpMetrics: httpMetrics,
		limiter:     netutil.NewLimiter(cfg.General.MaxConns),
	}

	if cfg.RateLimit.SourceIPLimitPerSecond > 0 {
		a.rateLimiter = ratelimiter.New(
			ratelimiter.WithSourceIPLimitPerSecond(cfg.RateLimit.SourceIPLimitPerSecond),
			ratelimiter.WithSourceIPBurstSize(cfg.RateLimit.SourceIPBurst),
			ratelimiter.WithEnforce(cfg.RateLimit.Enforce),
		)
	}

	return a
}

// buildHandler wraps the gateway in the middleware chain shared by every
// HTTP listener kind
func (a *theApp) buildHandler(listener string) (http.Handler, error) {
	handler := wsgi.NewHandler(a.app)

	if a.rateLimiter != nil {
		handler = a.rateLimiter.SourceIPLimiter(handler)
	}

	handler = healthcheck.NewMiddleware(handler, a.config.General.StatusPath)
	handler = urilimiter.NewMiddleware(handler, a.config.General.MaxURILength)
	handler = rejectmethods.NewMiddleware(handler)
	handler = a.httpMetrics(handler, labmetrics.WithLabelValues(map[string]string{"listener": listener}))

	handler, err := logging.BasicAccessLogger(handler, a.config.Log.Format)
	if err != nil {
		return nil, err
	}

	var correlationOpts []correlation.InboundHandlerOption
	if a.config.General.PropagateCorrelationID {
		correlationOpts = append(correlationOpts, correlation.WithPropagation())
	}

	handler = correlation.InjectCorrelationID(handler, correlationOpts...)

	// trusted proxies rewrite the scheme, host and remote address before
	// anything else looks at them
	if listener == listenerProxy {
		handler = ghandlers.ProxyHeaders(handler)
	}

	return handler, nil
}

func (a *theApp) metricsHandler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if a.config.General.StatusPath != "" {
		router.Handle(a.config.General.StatusPath, healthcheck.Handler()).Methods(http.MethodGet, http.MethodHead)
	}

	return router
}

// setup creates a server for every listener without starting any of them
func (a *theApp) setup(ls *listeners) error {
	var tlsConfig *tls.Config
	if len(ls.https) > 0 {
		var err error

		tlsConfig, err = cfgtls.Create(
			a.config.General.RootCertificate,
			a.config.General.RootKey,
			a.config.General.InsecureCiphers,
			a.config.TLS.MinVersion,
			a.config.TLS.MaxVersion,
		)
		if err != nil {
			return fmt.Errorf("creating TLS config: %w", err)
		}
	}

	for _, group := range []struct {
		kind      string
		listeners []net.Listener
		tlsConfig *tls.Config
	}{
		{listenerHTTP, ls.http, nil},
		{listenerHTTPS, ls.https, tlsConfig},
		{listenerProxy, ls.proxy, nil},
		{listenerProxyv2, ls.proxyv2, nil},
	} {
		if len(group.listeners) == 0 {
			continue
		}

		handler, err := a.buildHandler(group.kind)
		if err != nil {
			return fmt.Errorf("building %s handler: %w", group.kind, err)
		}

		for _, l := range group.listeners {
			if err := a.addHTTPService(listenerConfig{
				kind:      group.kind,
				listener:  l,
				isProxyV2: group.kind == listenerProxyv2,
				tlsConfig: group.tlsConfig,
				handler:   handler,
			}); err != nil {
				return err
			}
		}
	}

	if len(ls.uwsgi) > 0 {
		a.addUWSGIServices(ls.uwsgi)
	}

	if ls.metrics != nil {
		if err := a.addHTTPService(listenerConfig{
			kind:     listenerMetrics,
			listener: ls.metrics,
			handler:  a.metricsHandler(),
		}); err != nil {
			return err
		}
	}

	return nil
}

// Run serves every listener until ctx is done or one of the servers fails,
// then shuts all of them down within the configured shutdown timeout
func (a *theApp) Run(ctx context.Context, ls *listeners) error {
	if err := a.setup(ls); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range a.services {
		s := s

		log.WithFields(log.Fields{
			"listener": s.addr.String(),
			"kind":     s.name,
		}).Info("Serving requests")

		g.Go(func() error {
			if err := s.serve(); err != nil && !isServerClosed(err) {
				return fmt.Errorf("%s server on %s: %w", s.name, s.addr, err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		log.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		return a.shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *theApp) shutdown(ctx context.Context) error {
	var (
		result *multierror.Error
		errs   = make(chan error, len(a.services))
	)

	for _, s := range a.services {
		s := s
		go func() {
			if err := s.shutdown(ctx); err != nil {
				errs <- fmt.Errorf("shutting down %s server on %s: %w", s.name, s.addr, err)
				return
			}
			errs <- nil
		}()
	}

	for range a.services {
		if err := <-errs; err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed) || errors.Is(err, uwsgi.ErrServerClosed)
}

func diagnosticOutput(name string) io.Writer {
	switch name {
	case config.DiagnosticStderr:
		return os.Stderr
	case config.DiagnosticDiscard:
		return io.Discard
	default:
		return os.Stdout
	}
}
