package config

import (
	"time"

	"github.com/namsral/flag"

	"gitlab.com/gitlab-org/request-echo/internal/config/tls"
)

var (
	rootCert = flag.String("root-cert", "", "The path to the certificate served on HTTPS listeners")
	rootKey  = flag.String("root-key", "", "The path to the private key served on HTTPS listeners")

	// HTTP rate limits
	rateLimitSourceIP      = flag.Float64("rate-limit-source-ip", 0.0, "Rate limit HTTP requests per second from a single IP, 0 means is disabled")
	rateLimitSourceIPBurst = flag.Int("rate-limit-source-ip-burst", 100, "Rate limit HTTP requests from a single IP, maximum burst allowed per second")
	rateLimitEnforce       = flag.Bool("rate-limit-enforce", true, "Reject rate limited requests with 429, when false they are only logged")

	statusPath             = flag.String("status-path", "", "The url path for a status page, e.g., /-/healthcheck")
	metricsAddress         = flag.String("metrics-address", "", "The address to listen on for metrics requests")
	sentryDSN              = flag.String("sentry-dsn", "", "The address for sending sentry crash reporting to")
	sentryEnvironment      = flag.String("sentry-environment", "", "The environment for sentry crash reporting")
	propagateCorrelationID = flag.Bool("propagate-correlation-id", true, "Reuse existing Correlation-ID from the incoming request header `X-Request-ID` if present")
	serverShutdownTimeout  = flag.Duration("server-shutdown-timeout", 30*time.Second, "Server shutdown timeout (default: 30s)")
	logFormat              = flag.String("log-format", "json", "The log output format: 'text' or 'json'")
	logVerbose             = flag.Bool("log-verbose", false, "Verbose logging")
	diagnosticOutput       = flag.String("diagnostic-output", DiagnosticStdout, "Where the per request diagnostic line is written: 'stdout', 'stderr' or 'discard'")

	maxConns        = flag.Int("max-conns", 0, "Limit on the number of concurrent connections to the HTTP, HTTPS, proxy and uwsgi listeners, 0 for no limit")
	maxURILength    = flag.Int("max-uri-length", 1024, "Limit the length of URI, 0 for unlimited.")
	insecureCiphers = flag.Bool("insecure-ciphers", false, "Use default list of cipher suites, may contain insecure ones like 3DES and RC4")
	tlsMinVersion   = flag.String("tls-min-version", "tls1.2", tls.FlagUsage("min"))
	tlsMaxVersion   = flag.String("tls-max-version", "", tls.FlagUsage("max"))

	// HTTP server timeouts
	serverReadTimeout       = flag.Duration("server-read-timeout", 5*time.Second, "ReadTimeout is the maximum duration for reading the entire request, including the body. A zero or negative value means there will be no timeout.")
	serverReadHeaderTimeout = flag.Duration("server-read-header-timeout", time.Second, "ReadHeaderTimeout is the amount of time allowed to read request headers. A zero or negative value means there will be no timeout.")
	serverWriteTimeout      = flag.Duration("server-write-timeout", 0, "WriteTimeout is the maximum duration before timing out writes of the response. A zero or negative value means there will be no timeout.")
	serverKeepAlive         = flag.Duration("server-keep-alive", 15*time.Second, "KeepAlive specifies the keep-alive period for network connections accepted by this listener. If zero, keep-alives are enabled if supported by the protocol and operating system. If negative, keep-alives are disabled.")

	// uwsgi connection deadlines
	uwsgiReadTimeout  = flag.Duration("uwsgi-read-timeout", 5*time.Second, "Maximum duration for reading a uwsgi request packet and body, 0 for no timeout")
	uwsgiWriteTimeout = flag.Duration("uwsgi-write-timeout", 5*time.Second, "Maximum duration for writing a uwsgi response, 0 for no timeout")

	showVersion = flag.Bool("version", false, "Show version")

	// See initFlags()
	listenHTTP    = MultiStringFlag{separator: ","}
	listenHTTPS   = MultiStringFlag{separator: ","}
	listenProxy   = MultiStringFlag{separator: ","}
	listenProxyv2 = MultiStringFlag{separator: ","}
	listenUWSGI   = MultiStringFlag{separator: ","}
)

// initFlags will be called from LoadConfig
func initFlags() {
	flag.Var(&listenHTTP, "listen-http", "The address(es) to listen on for HTTP requests")
	flag.Var(&listenHTTPS, "listen-https", "The address(es) to listen on for HTTPS requests")
	flag.Var(&listenProxy, "listen-proxy", "The address(es) to listen on for proxy requests, X-Forwarded-* headers are trusted")
	flag.Var(&listenProxyv2, "listen-proxyv2", "The address(es) to listen on for HTTP requests preceded by a PROXY protocol v2 header (https://www.haproxy.org/download/1.8/doc/proxy-protocol.txt)")
	flag.Var(&listenUWSGI, "listen-uwsgi", "The address(es) to listen on for uwsgi protocol requests")

	// read from -config=/path/to/request-echo-config
	flag.String(flag.DefaultConfigFlagname, "", "path to config file")

	flag.Parse()
}
