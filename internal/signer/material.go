package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pkcs12"
)

// Format is the encoding of a tenant's signing certificate.
type Format string

const (
	FormatPEM    Format = "pem"
	FormatPKCS12 Format = "pkcs12"
)

// Material is the raw signing identity handed to Sign. For PEM, Certificate holds the
// certificate and Key the (optionally encrypted) private key. For PKCS#12, Key holds the bundle.
type Material struct {
	Format      Format
	Certificate []byte
	Key         []byte
	Passphrase  []byte
}

// Zero overwrites the key bytes and the passphrase.
func (m *Material) Zero() {
	clear(m.Key)
	clear(m.Passphrase)
}

type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonWrongPassphrase Reason = "wrong passphrase"
	ReasonExpired         Reason = "expired"
	ReasonNotYetValid     Reason = "not yet valid"
	ReasonRevoked         Reason = "revoked"
	ReasonKeyMismatch     Reason = "key does not match certificate"
)

// CertificateError means the tenant's certificate or key cannot be used; retrying will not help.
type CertificateError struct {
	Reason Reason
	Err    error
}

func (e *CertificateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("certificate %s: %v", e.Reason, e.Err)
	}

	return "certificate " + string(e.Reason)
}

func (e *CertificateError) Unwrap() error {
	return e.Err
}

// SigningError is a failure of the signing operation itself.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func decode(m Material) (*rsa.PrivateKey, *x509.Certificate, error) {
	switch m.Format {
	case FormatPKCS12:
		return decodePKCS12(m)
	case FormatPEM, "":
		return decodePEM(m)
	}

	return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: fmt.Errorf("unknown format %q", m.Format)}
}

func decodePKCS12(m Material) (*rsa.PrivateKey, *x509.Certificate, error) {
	priv, cert, err := pkcs12.Decode(m.Key, string(m.Passphrase))
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, nil, &CertificateError{Reason: ReasonWrongPassphrase}
	}

	if err != nil {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: err}
	}

	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: errors.New("private key is not RSA")}
	}

	return key, cert, nil
}

func decodePEM(m Material) (*rsa.PrivateKey, *x509.Certificate, error) {
	certBlock, _ := pem.Decode(m.Certificate)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: errors.New("no PEM certificate")}
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: err}
	}

	keyBlock, _ := pem.Decode(m.Key)
	if keyBlock == nil {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: errors.New("no PEM private key")}
	}

	if keyBlock.Type == "ENCRYPTED PRIVATE KEY" {
		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: errors.New("encrypted PKCS#8 keys are not supported, use PKCS#12")}
	}

	der := keyBlock.Bytes
	encrypted := x509.IsEncryptedPEMBlock(keyBlock)

	if encrypted {
		der, err = x509.DecryptPEMBlock(keyBlock, m.Passphrase)
		if err != nil {
			return nil, nil, &CertificateError{Reason: ReasonWrongPassphrase, Err: err}
		}
	}

	defer clear(der)

	key, err := parseKey(der)
	if err != nil {
		// A wrong passphrase can still yield valid padding and decrypt to garbage.
		if encrypted {
			return nil, nil, &CertificateError{Reason: ReasonWrongPassphrase, Err: err}
		}

		return nil, nil, &CertificateError{Reason: ReasonMalformed, Err: err}
	}

	return key, cert, nil
}

func parseKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}

	return key, nil
}

// zeroKey overwrites the private exponent, the primes and the CRT values of key.
func zeroKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}

	if key.D != nil {
		clear(key.D.Bits())
	}

	for _, p := range key.Primes {
		clear(p.Bits())
	}

	pc := &key.Precomputed
	zeroInts(pc.Dp, pc.Dq, pc.Qinv)

	for _, crt := range pc.CRTValues {
		zeroInts(crt.Exp, crt.Coeff, crt.R)
	}
}

func zeroInts(ints ...*big.Int) {
	for _, v := range ints {
		if v != nil {
			clear(v.Bits())
		}
	}
}
