package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/namsral/flag"
	log "github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/request-echo/internal/config/tls"
)

// Diagnostic output destinations accepted by -diagnostic-output
const (
	DiagnosticStdout  = "stdout"
	DiagnosticStderr  = "stderr"
	DiagnosticDiscard = "discard"
)

// Config stores all the config options relevant to the echo daemon.
type Config struct {
	General   General
	Listeners Listeners
	Log       Log
	Sentry    Sentry
	TLS       TLS
	Server    Server
	RateLimit RateLimit
	UWSGI     UWSGI
}

// General groups settings that are general to the daemon and can not
// be categorized under other head.
type General struct {
	MaxConns               int
	MaxURILength           int
	MetricsAddress         string
	RootCertificate        []byte
	RootKey                []byte
	StatusPath             string
	InsecureCiphers        bool
	PropagateCorrelationID bool
	DiagnosticOutput       string

	ShowVersion bool
}

// Listeners holds the addresses of every listener, one slice per kind
type Listeners struct {
	HTTP    []string
	HTTPS   []string
	Proxy   []string
	Proxyv2 []string
	UWSGI   []string
}

// Count returns the number of configured listeners of every kind
func (l Listeners) Count() int {
	return len(l.HTTP) + len(l.HTTPS) + len(l.Proxy) + len(l.Proxyv2) + len(l.UWSGI)
}

// Log groups settings related to configuring logging
type Log struct {
	Format  string
	Verbose bool
}

// Sentry groups settings related to configuring Sentry
type Sentry struct {
	DSN         string
	Environment string
}

// TLS groups settings related to configuring TLS
type TLS struct {
	MinVersion uint16
	MaxVersion uint16
}

// Server groups the timeouts applied to every HTTP server
type Server struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ListenKeepAlive   time.Duration
	ShutdownTimeout   time.Duration
}

// RateLimit groups the source IP rate limiter settings. A zero
// SourceIPLimitPerSecond disables the limiter.
type RateLimit struct {
	SourceIPLimitPerSecond float64
	SourceIPBurst          int
	Enforce                bool
}

// UWSGI groups settings of the uwsgi listeners
type UWSGI struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func loadConfig() (*Config, error) {
	config := &Config{
		General: General{
			MaxConns:               *maxConns,
			MaxURILength:           *maxURILength,
			MetricsAddress:         *metricsAddress,
			StatusPath:             *statusPath,
			InsecureCiphers:        *insecureCiphers,
			PropagateCorrelationID: *propagateCorrelationID,
			DiagnosticOutput:       *diagnosticOutput,
			ShowVersion:            *showVersion,
		},
		Listeners: Listeners{
			HTTP:    listenHTTP.Split(),
			HTTPS:   listenHTTPS.Split(),
			Proxy:   listenProxy.Split(),
			Proxyv2: listenProxyv2.Split(),
			UWSGI:   listenUWSGI.Split(),
		},
		Log: Log{
			Format:  *logFormat,
			Verbose: *logVerbose,
		},
		Sentry: Sentry{
			DSN:         *sentryDSN,
			Environment: *sentryEnvironment,
		},
		Server: Server{
			ReadTimeout:       *serverReadTimeout,
			ReadHeaderTimeout: *serverReadHeaderTimeout,
			WriteTimeout:      *serverWriteTimeout,
			ListenKeepAlive:   *serverKeepAlive,
			ShutdownTimeout:   *serverShutdownTimeout,
		},
		RateLimit: RateLimit{
			SourceIPLimitPerSecond: *rateLimitSourceIP,
			SourceIPBurst:          *rateLimitSourceIPBurst,
			Enforce:                *rateLimitEnforce,
		},
		UWSGI: UWSGI{
			ReadTimeout:  *uwsgiReadTimeout,
			WriteTimeout: *uwsgiWriteTimeout,
		},
	}

	// -version short-circuits everything else
	if config.General.ShowVersion {
		return config, nil
	}

	var result *multierror.Error

	for _, file := range []struct {
		contents *[]byte
		path     string
	}{
		{&config.General.RootCertificate, *rootCert},
		{&config.General.RootKey, *rootKey},
	} {
		if file.path == "" {
			continue
		}

		var err error
		if *file.contents, err = os.ReadFile(file.path); err != nil {
			result = multierror.Append(result, fmt.Errorf("reading %s: %w", file.path, err))
		}
	}

	var err error
	if config.TLS.MinVersion, config.TLS.MaxVersion, err = tls.ParseVersions(*tlsMinVersion, *tlsMaxVersion); err != nil {
		result = multierror.Append(result, err)
	}

	if err := Validate(config); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return config, nil
}

// LogConfig logs the effective configuration at debug level
func LogConfig(config *Config) {
	log.WithFields(log.Fields{
		"default-config-filename":    flag.DefaultConfigFlagname,
		"diagnostic-output":          config.General.DiagnosticOutput,
		"insecure-ciphers":           config.General.InsecureCiphers,
		"listen-http":                config.Listeners.HTTP,
		"listen-https":               config.Listeners.HTTPS,
		"listen-proxy":               config.Listeners.Proxy,
		"listen-proxyv2":             config.Listeners.Proxyv2,
		"listen-uwsgi":               config.Listeners.UWSGI,
		"log-format":                 config.Log.Format,
		"max-conns":                  config.General.MaxConns,
		"max-uri-length":             config.General.MaxURILength,
		"metrics-address":            config.General.MetricsAddress,
		"propagate-correlation-id":   config.General.PropagateCorrelationID,
		"rate-limit-enforce":         config.RateLimit.Enforce,
		"rate-limit-source-ip":       config.RateLimit.SourceIPLimitPerSecond,
		"rate-limit-source-ip-burst": config.RateLimit.SourceIPBurst,
		"root-cert":                  *rootCert,
		"root-key":                   *rootKey,
		"server-keep-alive":          config.Server.ListenKeepAlive,
		"server-read-header-timeout": config.Server.ReadHeaderTimeout,
		"server-read-timeout":        config.Server.ReadTimeout,
		"server-shutdown-timeout":    config.Server.ShutdownTimeout,
		"server-write-timeout":       config.Server.WriteTimeout,
		"status-path":                config.General.StatusPath,
		"tls-max-version":            *tlsMaxVersion,
		"tls-min-version":            *tlsMinVersion,
		"uwsgi-read-timeout":         config.UWSGI.ReadTimeout,
		"uwsgi-write-timeout":        config.UWSGI.WriteTimeout,
	}).Debug("Start daemon with configuration")
}

// LoadConfig parses configuration settings passed as command line arguments or
// via config file, and populates a Config object with those values
func LoadConfig() (*Config, error) {
	initFlags()

	return loadConfig()
}
