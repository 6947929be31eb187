// Package tlsconfig loads PEM certificate material and builds the
// tls.Config values netconn's listener and dialers need. It stays on the
// standard library's crypto/tls and encoding/pem: none of the retrieved
// example repos pull in a third-party PEM/cert-loading library, so there
// is nothing in the corpus to ground a replacement on.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// LoadServerConfig builds a server-side tls.Config from a PEM certificate
// chain and a PEM private key (PKCS#1 RSA, PKCS#8 or EC; tls.X509KeyPair
// detects which form the key material uses).
func LoadServerConfig(certPEM, keyPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: loading server keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadClientConfig builds a client-side tls.Config that validates the
// peer against the system root pool and the given SNI domain.
func LoadClientConfig(domain string) *tls.Config {
	return &tls.Config{
		ServerName: domain,
		NextProtos: []string{"http/1.1"},
		MinVersion: tls.VersionTLS12,
	}
}

// LoadClientConfigWithRoots is LoadClientConfig but pinned to a caller-
// supplied root pool instead of the system roots, for tests and private
// CAs.
func LoadClientConfigWithRoots(domain string, roots *x509.CertPool) *tls.Config {
	cfg := LoadClientConfig(domain)
	cfg.RootCAs = roots
	return cfg
}
