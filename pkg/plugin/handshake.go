package plugin

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/openfroyo/providerkit/pkg/diag"
)

const (
	// CookieEnv must hold CookieValue in the plugin's environment. It
	// proves the process was launched by an orchestrator rather than run
	// by hand; it is an ergonomics check, not a security boundary.
	CookieEnv   = "PROVIDERKIT_MAGIC_COOKIE"
	CookieValue = "b4f9a0c2d4764f6e9d4f5a3c8e217b90"

	// ProtocolVersionsEnv lists the protocol versions the orchestrator
	// speaks, comma separated, e.g. "1.0,1.1".
	ProtocolVersionsEnv = "PROVIDERKIT_PROTOCOL_VERSIONS"

	// ClientCertEnv carries the orchestrator's PEM client certificate.
	// When present the channel requires mutual TLS.
	ClientCertEnv = "PROVIDERKIT_CLIENT_CERT"

	// CoreProtocolVersion is the handshake line format version.
	CoreProtocolVersion = 1

	// ProtocolVersion is the highest plugin protocol version this
	// framework speaks.
	ProtocolVersion = "1.0"
)

// CheckCookie verifies the magic cookie environment variable.
func CheckCookie() error {
	if os.Getenv(CookieEnv) != CookieValue {
		return diag.NewTransportError(
			"this binary is a plugin and must be launched by an orchestrator, not run directly", nil).
			WithCode(diag.CodeHandshakeFailed)
	}
	return nil
}

// NegotiateVersion picks the protocol version to speak from the
// orchestrator's advertised list. An unset list means a legacy client that
// only speaks 1.0.
func NegotiateVersion(advertised string) (string, error) {
	if advertised == "" {
		return ProtocolVersion, nil
	}
	for _, v := range strings.Split(advertised, ",") {
		if strings.TrimSpace(v) == ProtocolVersion {
			return ProtocolVersion, nil
		}
	}
	return "", diag.NewTransportError(
		fmt.Sprintf("no common protocol version: plugin speaks %s, orchestrator offered %s",
			ProtocolVersion, advertised), nil).
		WithCode(diag.CodeHandshakeFailed)
}

// GenerateServerTLS builds a fresh self-signed certificate for this
// invocation. The certificate lives only as long as the process; the DER
// bytes are published to the orchestrator through the handshake line so it
// can pin them.
func GenerateServerTLS() (*tls.Config, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, diag.NewTransportError("failed to generate server key", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, diag.NewTransportError("failed to generate certificate serial", err)
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, diag.NewTransportError("failed to create server certificate", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	// Mutual authentication when the orchestrator supplied its
	// certificate through the environment.
	if pemCert := os.Getenv(ClientCertEnv); pemCert != "" {
		block, _ := pem.Decode([]byte(pemCert))
		if block == nil {
			return nil, nil, diag.NewTransportError("malformed client certificate in environment", nil).
				WithCode(diag.CodeHandshakeFailed)
		}
		clientCert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, diag.NewTransportError("failed to parse client certificate", err).
				WithCode(diag.CodeHandshakeFailed)
		}
		pool := x509.NewCertPool()
		pool.AddCert(clientCert)
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, der, nil
}

// HandshakeLine renders the single line printed to stdout once the adapter
// is listening: core version, negotiated protocol version, network, address,
// framing, and the base64 DER server certificate for pinning.
func HandshakeLine(protocolVersion, network, address string, certDER []byte) string {
	return fmt.Sprintf("%d|%s|%s|%s|json|%s",
		CoreProtocolVersion,
		protocolVersion,
		network,
		address,
		base64.StdEncoding.EncodeToString(certDER))
}
