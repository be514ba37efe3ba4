package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrNoListener              = errors.New("no listener defined, please specify at least one --listen-* flag")
	ErrInvalidDiagnosticOutput = errors.New("diagnostic-output must be one of 'stdout', 'stderr' or 'discard'")
	ErrHTTPSNoCertificate      = errors.New("root-cert and root-key must be defined when listen-https is used")
	ErrNegativeMaxConns        = errors.New("max-conns must not be negative")
	ErrInvalidBurst            = errors.New("rate-limit-source-ip-burst must be greater than 0 when rate-limit-source-ip is set")
)

// Validate checks the loaded configuration and returns every problem it finds
func Validate(config *Config) error {
	var result *multierror.Error

	if config.Listeners.Count() == 0 {
		result = multierror.Append(result, ErrNoListener)
	}

	switch config.General.DiagnosticOutput {
	case DiagnosticStdout, DiagnosticStderr, DiagnosticDiscard:
	default:
		result = multierror.Append(result, fmt.Errorf("%w: got %q", ErrInvalidDiagnosticOutput, config.General.DiagnosticOutput))
	}

	if len(config.Listeners.HTTPS) > 0 &&
		(len(config.General.RootCertificate) == 0 || len(config.General.RootKey) == 0) {
		result = multierror.Append(result, ErrHTTPSNoCertificate)
	}

	if config.General.MaxConns < 0 {
		result = multierror.Append(result, ErrNegativeMaxConns)
	}

	if config.RateLimit.SourceIPLimitPerSecond > 0 && config.RateLimit.SourceIPBurst <= 0 {
		result = multierror.Append(result, ErrInvalidBurst)
	}

	return result.ErrorOrNil()
}
