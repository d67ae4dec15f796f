package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// TrustPolicy decides how server certificates are validated.
type TrustPolicy string

const (
	// TrustVerify validates the server chain against system roots plus any
	// configured CA file.
	TrustVerify TrustPolicy = "verify"

	// TrustInsecure accepts any certificate. Development only.
	TrustInsecure TrustPolicy = "insecure"
)

// ParseTrustPolicy parses "verify" or "insecure".
func ParseTrustPolicy(s string) (TrustPolicy, error) {
	switch TrustPolicy(s) {
	case TrustVerify, "":
		return TrustVerify, nil
	case TrustInsecure:
		return TrustInsecure, nil
	default:
		return "", fmt.Errorf("unknown trust policy %q", s)
	}
}

// clientTLS builds the client TLS config for the trust policy.
func clientTLS(cfg Config, roots *x509.CertPool) (*tls.Config, error) {
	tlsConf := &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{cfg.ALPN},
	}

	switch cfg.Trust {
	case TrustInsecure:
		tlsConf.InsecureSkipVerify = true
		return tlsConf, nil
	case TrustVerify, "":
	default:
		return nil, fmt.Errorf("unknown trust policy %q", cfg.Trust)
	}

	if roots == nil && cfg.CAFile != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		pemData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates in CA file %s", cfg.CAFile)
		}
		roots = pool
	}
	tlsConf.RootCAs = roots
	return tlsConf, nil
}

// Certificate is a server certificate with its PEM encoding.
type Certificate struct {
	TLS tls.Certificate
	PEM []byte
}

// SelfSignedTLS generates an ECDSA P-256 certificate valid for the given
// host names and IP addresses, for one week. With no hosts it covers
// localhost and 127.0.0.1.
func SelfSignedTLS(hosts ...string) (*Certificate, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hosts[0], Organization: []string{"portal"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(7 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return &Certificate{
		TLS: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  key,
			Leaf:        leaf,
		},
		PEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}, nil
}

// LoadCertificate reads a PEM certificate and key pair from disk.
func LoadCertificate(certFile, keyFile string) (*Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	pemData, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	return &Certificate{TLS: pair, PEM: pemData}, nil
}

// Pool returns a cert pool trusting only this certificate.
func (c *Certificate) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(c.PEM)
	return pool
}

// ServerConfig returns a TLS config that presents this certificate and
// negotiates alpn.
func (c *Certificate) ServerConfig(alpn string) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{c.TLS},
		NextProtos:   []string{alpn},
	}
}
