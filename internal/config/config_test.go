package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()

	orig := *p
	*p = v
	t.Cleanup(func() { *p = orig })
}

func setListenHTTP(t *testing.T, addrs ...string) {
	t.Helper()

	orig := listenHTTP
	listenHTTP = MultiStringFlag{value: addrs, separator: ","}
	t.Cleanup(func() { listenHTTP = orig })
}

func TestLoadConfig(t *testing.T) {
	setListenHTTP(t, "127.0.0.1:8080,127.0.0.1:8081")
	setFlag(t, tlsMaxVersion, "tls1.3")

	cfg, err := loadConfig()
	require.NoError(t, err)

	require.Equal(t, []string{"127.0.0.1:8080", "127.0.0.1:8081"}, cfg.Listeners.HTTP)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.TLS.MinVersion)
	require.Equal(t, uint16(tls.VersionTLS13), cfg.TLS.MaxVersion)
	require.Equal(t, DiagnosticStdout, cfg.General.DiagnosticOutput)
	require.Equal(t, 1024, cfg.General.MaxURILength)
	require.True(t, cfg.RateLimit.Enforce)
	require.True(t, cfg.General.PropagateCorrelationID)
}

func TestLoadConfigReadsCertificates(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "echo.crt")
	keyPath := filepath.Join(dir, "echo.key")
	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0600))

	setListenHTTP(t, "127.0.0.1:8080")
	setFlag(t, rootCert, certPath)
	setFlag(t, rootKey, keyPath)

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, []byte("cert"), cfg.General.RootCertificate)
	require.Equal(t, []byte("key"), cfg.General.RootKey)
}

func TestLoadConfigErrors(t *testing.T) {
	setListenHTTP(t)
	setFlag(t, rootCert, filepath.Join(t.TempDir(), "missing.crt"))
	setFlag(t, tlsMinVersion, "tls123")

	_, err := loadConfig()
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, err, ErrNoListener)
	require.Contains(t, err.Error(), "invalid minimum TLS version: tls123")
}

func TestLoadConfigShowVersion(t *testing.T) {
	setListenHTTP(t)
	setFlag(t, showVersion, true)

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.True(t, cfg.General.ShowVersion)
}
