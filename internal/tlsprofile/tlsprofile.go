// Package tlsprofile builds a *tls.Config for one connect operation: SNI
// priority, custom CA roots, mutual-TLS client certificates, and
// min/max version plus cipher suite selection. The version/cipher-suite
// naming tables and ApplyCipherSuites heuristic are adapted from the
// teacher's pkg/tlsconfig/tlsconfig.go; the SNI precedence and client-cert
// loading are adapted from the teacher's pkg/transport/transport.go
// upgradeTLS/ConfigureSNI/loadClientCertificate.
package tlsprofile

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/duskline/rawhttp/internal/herr"
)

// Recommended cipher suites, strongest first, grouped by minimum TLS version
// they pair naturally with.
var (
	CipherSuitesTLS12Secure = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}
	CipherSuitesCompatible = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	}
)

// GetVersionName returns a human-readable TLS version name for logging/trace.
func GetVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown TLS version 0x%04x", version)
	}
}

// Options carries the per-connect TLS choices a ConnectorConfig/Request can
// specify, mirroring SPEC_FULL.md's ClientConfig/ConnectorConfig TLS fields.
type Options struct {
	ServerName         string
	InsecureSkipVerify bool
	CustomCACerts      [][]byte
	ClientCertPEM      []byte
	ClientKeyPEM       []byte
	MinVersion         uint16
	MaxVersion         uint16
	CipherSuites       []uint16
	Base               *tls.Config // passthrough config; cloned and layered with the above if set
}

// Build constructs a *tls.Config for one TLS handshake to host. SNI
// precedence: Base.ServerName (if already set) > opts.ServerName > host.
func Build(host string, opts Options) (*tls.Config, error) {
	var cfg *tls.Config
	if opts.Base != nil {
		cfg = opts.Base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg.NextProtos = []string{"http/1.1"}

	if opts.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}

	if cfg.ServerName == "" {
		if opts.ServerName != "" {
			cfg.ServerName = opts.ServerName
		} else {
			cfg.ServerName = host
		}
	}

	if len(opts.CustomCACerts) > 0 {
		pool := x509.NewCertPool()
		for i, pem := range opts.CustomCACerts {
			if ok := pool.AppendCertsFromPEM(pem); !ok {
				return nil, herr.NewBuilderError("tls_config", fmt.Sprintf("failed to parse CA certificate at index %d", i), nil)
			}
		}
		cfg.RootCAs = pool
	}

	if opts.MinVersion != 0 {
		cfg.MinVersion = opts.MinVersion
	}
	if opts.MaxVersion != 0 {
		cfg.MaxVersion = opts.MaxVersion
	}
	if len(opts.CipherSuites) > 0 {
		cfg.CipherSuites = opts.CipherSuites
	}

	if len(opts.ClientCertPEM) > 0 && len(opts.ClientKeyPEM) > 0 {
		cert, err := tls.X509KeyPair(opts.ClientCertPEM, opts.ClientKeyPEM)
		if err != nil {
			return nil, herr.NewBuilderError("tls_config", "failed to parse client certificate/key", err)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}

	return cfg, nil
}

// LoadClientCertFiles reads a PEM cert/key pair from disk, a convenience for
// callers building Options from file paths rather than in-memory PEM bytes.
func LoadClientCertFiles(certFile, keyFile string) (certPEM, keyPEM []byte, err error) {
	certPEM, err = os.ReadFile(certFile)
	if err != nil {
		return nil, nil, herr.NewBuilderError("tls_config", "failed to read client certificate file "+certFile, err)
	}
	keyPEM, err = os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, herr.NewBuilderError("tls_config", "failed to read client key file "+keyFile, err)
	}
	return certPEM, keyPEM, nil
}
