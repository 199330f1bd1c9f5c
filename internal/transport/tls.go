// Package transport provides the single-layer TLS listener and dialer the
// tunnel protocol runs over. It deliberately does not multiplex: each TLS
// connection carries exactly one logical session (spec's non-goal on
// multiplexing).
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/Mukthiteja/Secure-VPN/internal/certutil"
)

// LoadServerTLSConfig builds a server-side TLS config from certificate and
// key files. If clientCAFile is non-empty, mutual TLS is required.
func LoadServerTLSConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if clientCAFile != "" {
		pool, err := LoadCAPool(clientCAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// LoadClientTLSConfig builds a client-side TLS config. If caFile is
// non-empty, the server certificate is verified against it; otherwise
// insecureSkipVerify controls whether verification is skipped (intended
// only for local development against a self-signed server).
func LoadClientTLSConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecureSkipVerify,
	}

	if caFile != "" {
		pool, err := LoadCAPool(caFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// LoadCAPool loads a CA certificate pool from a PEM file.
func LoadCAPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("transport: read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("transport: parse CA certificate")
	}
	return pool, nil
}

// TLSConfigFromPEM builds a TLS config directly from PEM-encoded
// certificate and key bytes, for configurations that inline credentials.
func TLSConfigFromPEM(certPEM, keyPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("transport: parse certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// GenerateSelfSignedCert creates a self-signed server+client certificate for
// local development and testing, returned as PEM bytes, so one identity
// can both listen and dial. GenerateAndSaveCert is the variant that
// writes the certificate to files.
func GenerateSelfSignedCert(commonName string, validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	opts := certutil.DefaultPeerOptions(commonName)
	opts.ValidFor = validFor
	gc, err := certutil.GenerateCert(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: generate certificate: %w", err)
	}
	return gc.CertPEM, gc.KeyPEM, nil
}

// GenerateAndSaveCert generates a self-signed certificate and writes it to
// certFile/keyFile.
func GenerateAndSaveCert(certFile, keyFile, commonName string, validFor time.Duration) error {
	opts := certutil.DefaultPeerOptions(commonName)
	opts.ValidFor = validFor
	gc, err := certutil.GenerateCert(opts)
	if err != nil {
		return fmt.Errorf("transport: generate certificate: %w", err)
	}
	return gc.SaveToFiles(certFile, keyFile)
}
