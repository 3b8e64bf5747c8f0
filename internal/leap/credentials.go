package leap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// Credentials is the PEM material produced by pairing with a hub.
type Credentials struct {
	CA   []byte
	Key  []byte
	Cert []byte
}

// Validate checks that the key pair matches and the CA parses, so a broken
// credential set fails locally instead of at the hub.
func (c Credentials) Validate() error {
	if len(c.CA) == 0 || len(c.Key) == 0 || len(c.Cert) == 0 {
		return fmt.Errorf("%w: CA, key and certificate are all required", ErrInvalidCredentials)
	}
	if _, err := tls.X509KeyPair(c.Cert, c.Key); err != nil {
		return fmt.Errorf("%w: key pair: %w", ErrInvalidCredentials, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(c.CA) {
		return fmt.Errorf("%w: no CA certificate found in PEM", ErrInvalidCredentials)
	}
	return nil
}
