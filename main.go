package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	labmetrics "gitlab.com/gitlab-org/labkit/metrics"
	log "github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/request-echo/internal/config"
	"gitlab.com/gitlab-org/request-echo/internal/echo"
	"gitlab.com/gitlab-org/request-echo/internal/errortracking"
	"gitlab.com/gitlab-org/request-echo/internal/logging"
	"gitlab.com/gitlab-org/request-echo/metrics"
)

// VERSION stores the information about the semantic version of application
var VERSION = "dev"

// REVISION stores the information about the git revision of application
var REVISION = "HEAD"

func appMain() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	printVersion(cfg.General.ShowVersion, VERSION)

	if err := logging.ConfigureLogging(cfg.Log.Format, cfg.Log.Verbose); err != nil {
		log.WithError(err).Fatal("Failed to initialize logging")
	}

	log.WithFields(log.Fields{
		"version":  VERSION,
		"revision": REVISION,
	}).Print("Request Echo Daemon")

	config.LogConfig(cfg)

	if err := errortracking.Initialize(cfg.Sentry.DSN, cfg.Sentry.Environment, fmt.Sprintf("%s-%s", VERSION, REVISION)); err != nil {
		log.WithError(err).Warn("Failed to initialize error tracking")
	}

	ls, err := createListeners(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create listeners")
	}
	defer ls.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpMetrics := labmetrics.NewHandlerFactory(
		labmetrics.WithNamespace(metricsNamespace),
		labmetrics.WithLabels("listener"),
	)

	a := newApp(cfg, echo.New(echo.WithOutput(diagnosticOutput(cfg.General.DiagnosticOutput))), httpMetrics)
	if err := a.Run(ctx, ls); err != nil {
		log.WithError(err).Fatal("Request echo daemon stopped")
	}

	log.Info("Request echo daemon stopped")
}

// listeners holds every socket the daemon serves on, grouped by kind
type listeners struct {
	http    []net.Listener
	https   []net.Listener
	proxy   []net.Listener
	proxyv2 []net.Listener
	uwsgi   []net.Listener
	metrics net.Listener
}

func (ls *listeners) all() []net.Listener {
	all := make([]net.Listener, 0, len(ls.http)+len(ls.https)+len(ls.proxy)+len(ls.proxyv2)+len(ls.uwsgi)+1)
	for _, group := range [][]net.Listener{ls.http, ls.https, ls.proxy, ls.proxyv2, ls.uwsgi} {
		all = append(all, group...)
	}

	if ls.metrics != nil {
		all = append(all, ls.metrics)
	}

	return all
}

// Close closes every listener, ignoring the ones already closed by a server
// shutdown
func (ls *listeners) Close() error {
	var result *multierror.Error

	for _, l := range ls.all() {
		if err := l.Close(); err != nil && !isClosedConnError(err) {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// createListeners opens a TCP socket for every configured address. Sockets
// opened before a failure are closed again.
func createListeners(cfg *config.Config) (*listeners, error) {
	ls := &listeners{}

	for _, group := range []struct {
		name  string
		addrs []string
		dst   *[]net.Listener
	}{
		{"HTTP", cfg.Listeners.HTTP, &ls.http},
		{"HTTPS", cfg.Listeners.HTTPS, &ls.https},
		{"proxy", cfg.Listeners.Proxy, &ls.proxy},
		{"proxyv2", cfg.Listeners.Proxyv2, &ls.proxyv2},
		{"uwsgi", cfg.Listeners.UWSGI, &ls.uwsgi},
	} {
		for _, addr := range group.addrs {
			l, err := net.Listen("tcp", addr)
			if err != nil {
				ls.Close()
				return nil, fmt.Errorf("creating %s listener on %s: %w", group.name, addr, err)
			}

			log.WithFields(log.Fields{
				"listener": addr,
			}).Debugf("Set up %s listener", group.name)

			*group.dst = append(*group.dst, l)
		}
	}

	if addr := cfg.General.MetricsAddress; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			ls.Close()
			return nil, fmt.Errorf("creating metrics listener on %s: %w", addr, err)
		}

		log.WithFields(log.Fields{
			"listener": addr,
		}).Debug("Set up metrics listener")

		ls.metrics = l
	}

	return ls, nil
}

func printVersion(showVersion bool, version string) {
	if showVersion {
		fmt.Fprintf(os.Stdout, "%s\n", version)
		os.Exit(0)
	}
}

func main() {
	log.SetOutput(os.Stderr)

	metrics.MustRegister()

	appMain()
}
