package config

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         func(*Config)
		expectedErr error
	}{
		{
			name: "valid",
			cfg:  func(*Config) {},
		},
		{
			name:        "no_listeners",
			cfg:         NoListeners,
			expectedErr: ErrNoListener,
		},
		{
			name: "uwsgi_listener_only",
			cfg:  UWSGIOnly,
		},
		{
			name:        "invalid_diagnostic_output",
			cfg:         InvalidDiagnosticOutput,
			expectedErr: ErrInvalidDiagnosticOutput,
		},
		{
			name: "discard_diagnostic_output",
			cfg:  DiscardDiagnosticOutput,
		},
		{
			name:        "https_no_certificate",
			cfg:         HTTPSNoCertificate,
			expectedErr: ErrHTTPSNoCertificate,
		},
		{
			name: "https_with_certificate",
			cfg:  HTTPSWithCertificate,
		},
		{
			name:        "negative_max_conns",
			cfg:         NegativeMaxConns,
			expectedErr: ErrNegativeMaxConns,
		},
		{
			name:        "rate_limit_without_burst",
			cfg:         RateLimitNoBurst,
			expectedErr: ErrInvalidBurst,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.cfg(&cfg)

			err := Validate(&cfg)
			if tt.expectedErr != nil {
				require.True(t, errors.Is(err, tt.expectedErr))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateCollectsEveryError(t *testing.T) {
	cfg := validConfig()
	NoListeners(&cfg)
	InvalidDiagnosticOutput(&cfg)

	err := Validate(&cfg)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	require.ErrorIs(t, err, ErrNoListener)
	require.ErrorIs(t, err, ErrInvalidDiagnosticOutput)
}

func NoListeners(cfg *Config) {
	cfg.Listeners = Listeners{}
}

func UWSGIOnly(cfg *Config) {
	cfg.Listeners = Listeners{UWSGI: []string{"127.0.0.1:3031"}}
}

func InvalidDiagnosticOutput(cfg *Config) {
	cfg.General.DiagnosticOutput = "syslog"
}

func DiscardDiagnosticOutput(cfg *Config) {
	cfg.General.DiagnosticOutput = DiagnosticDiscard
}

func HTTPSNoCertificate(cfg *Config) {
	cfg.Listeners.HTTPS = []string{"127.0.0.1:443"}
}

func HTTPSWithCertificate(cfg *Config) {
	cfg.Listeners.HTTPS = []string{"127.0.0.1:443"}
	cfg.General.RootCertificate = []byte("cert")
	cfg.General.RootKey = []byte("key")
}

func NegativeMaxConns(cfg *Config) {
	cfg.General.MaxConns = -1
}

func RateLimitNoBurst(cfg *Config) {
	cfg.RateLimit.SourceIPLimitPerSecond = 10
	cfg.RateLimit.SourceIPBurst = 0
}

func validConfig() Config {
	return Config{
		General: General{
			DiagnosticOutput: DiagnosticStdout,
		},
		Listeners: Listeners{
			HTTP: []string{"127.0.0.1:80"},
		},
		RateLimit: RateLimit{
			SourceIPBurst: 100,
		},
	}
}
