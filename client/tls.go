package client

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/gravitational/trace"
)

// LoadTrustStore reads a PEM-encoded CA bundle from disk. The resulting
// pool is immutable and lives for the lifetime of the TLS config built
// from it.
func LoadTrustStore(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, trace.BadParameter("no CA certificates found in %s", path)
	}
	return pool, nil
}

// newTLSConfig builds a client TLS config that trusts the given roots but
// does not require the server certificate's name to match the dialed
// host. InsecureSkipVerify only disables the standard callback; the
// VerifyPeerCertificate hook below still enforces the chain of trust.
func newTLSConfig(roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyIgnoringName(roots),
	}
}

// verifyIgnoringName validates the presented chain against roots:
// signatures, validity period and server-auth usage are all enforced,
// and only hostname matching is skipped. Some clusters share one
// certificate across every node and address nodes by IP, where no SAN
// (and no dnsname wildcard) can match; this policy keeps the remaining
// trust properties intact for that deployment shape. It does open the
// door to a MitM that holds any certificate signed by the same CA, so
// it is opt-in via ConnectTLS rather than a default.
func verifyIgnoringName(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return trace.BadParameter("server presented no certificate")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return trace.Wrap(err)
			}
			certs = append(certs, cert)
		}
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		// DNSName is deliberately left empty so that hostname
		// verification is skipped; everything else runs as usual.
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		})
		return trace.Wrap(err)
	}
}
