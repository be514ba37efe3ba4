package tls

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
)

var (
	preferredCipherSuites = []uint16{
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_AES_128_GCM_SHA256,
		tls.TLS_AES_256_GCM_SHA384,
		tls.TLS_CHACHA20_POLY1305_SHA256,
	}

	// AllTLSVersions has all supported flag values
	AllTLSVersions = map[string]uint16{
		"":       0, // Default value in tls.Config
		"tls1.2": tls.VersionTLS12,
		"tls1.3": tls.VersionTLS13,
	}
)

// FlagUsage returns string with explanation how to use the CLI flag
func FlagUsage(minOrMax string) string {
	versions := []string{}

	for version := range AllTLSVersions {
		if version != "" {
			versions = append(versions, fmt.Sprintf("%q", version))
		}
	}
	sort.Strings(versions)

	return fmt.Sprintf("Specifies the "+minOrMax+"imum SSL/TLS version, supported values are %s", strings.Join(versions, ", "))
}

// ParseVersions maps the tls-min-version and tls-max-version flag values to
// crypto/tls constants. An empty max means no upper bound.
func ParseVersions(min, max string) (uint16, uint16, error) {
	tlsMin, tlsMinOk := AllTLSVersions[min]
	tlsMax, tlsMaxOk := AllTLSVersions[max]

	if !tlsMinOk {
		return 0, 0, fmt.Errorf("invalid minimum TLS version: %s", min)
	}
	if !tlsMaxOk {
		return 0, 0, fmt.Errorf("invalid maximum TLS version: %s", max)
	}
	if tlsMin > tlsMax && tlsMax > 0 {
		return 0, 0, fmt.Errorf("invalid maximum TLS version: %s; should be at least %s", max, min)
	}

	return tlsMin, tlsMax, nil
}

// Create returns the tls.Config of the HTTPS listeners
func Create(cert, key []byte, insecureCiphers bool, tlsMinVersion uint16, tlsMaxVersion uint16) (*tls.Config, error) {
	certificate, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tlsMinVersion,
		MaxVersion:   tlsMaxVersion,
	}

	if !insecureCiphers {
		tlsConfig.PreferServerCipherSuites = true
		tlsConfig.CipherSuites = preferredCipherSuites
	}

	return tlsConfig, nil
}
