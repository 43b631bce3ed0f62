// Package signer applies the XMLDSig/XAdES enveloped signature DIAN requires on UBL documents.
package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"

	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

var (
	errPlaceholder      = errors.New("document must contain exactly one signature placeholder")
	ErrInvalidSignature = errors.New("invalid signature")
)

// RevocationChecker reports whether a signing certificate has been revoked by its issuer.
type RevocationChecker interface {
	IsRevoked(cert *x509.Certificate) (bool, error)
}

// Signed is a document carrying its enveloped signature.
type Signed struct {
	Document    []byte
	Digest      string
	SignedAt    time.Time
	Certificate *x509.Certificate
}

type Signer struct {
	now        func() time.Time
	revocation RevocationChecker
}

type Option func(*Signer)

// WithClock replaces time.Now for validity checks and the XAdES signing time.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

func WithRevocationChecker(rc RevocationChecker) Option {
	return func(s *Signer) {
		s.revocation = rc
	}
}

func New(opts ...Option) *Signer {
	s := &Signer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sign embeds the signature into doc at the document.SignaturePlaceholder. The emitted bytes
// are doc plus the signature; the digests cover their C14N 1.0 form. The decoded private key is
// zeroed before Sign returns.
func (s *Signer) Sign(doc []byte, m Material) (*Signed, error) {
	if bytes.Count(doc, []byte(document.SignaturePlaceholder)) != 1 {
		return nil, &SigningError{Op: "locating placeholder", Err: errPlaceholder}
	}

	key, cert, err := decode(m)
	defer zeroKey(key)

	if err != nil {
		return nil, err
	}

	if err := s.checkCertificate(cert, key); err != nil {
		return nil, err
	}

	tree, err := parse(doc)
	if err != nil {
		return nil, &SigningError{Op: "parsing document", Err: err}
	}

	// The enveloped transform of the signed document yields the unsigned one.
	docDigest, err := canonicalDigest(tree.Root())
	if err != nil {
		return nil, &SigningError{Op: "canonicalizing document", Err: err}
	}

	signedAt := s.now().In(invoice.Bogota)
	sigID := "xmldsig-" + uuid.NewString()

	props := xadesSignedProperties{
		ID: sigID + "-signedprops",
		Signature: xadesSignedSignatureProperties{
			SigningTime: signedAt.Format("2006-01-02T15:04:05.000-07:00"),
			SigningCertificate: xadesCert{
				CertDigest: xadesDigest{DigestMethod: dsAlgorithm{Algorithm: algSHA256}, DigestValue: digest(cert.Raw)},
				IssuerSerial: xadesIssuerSerial{
					IssuerName:   cert.Issuer.String(),
					SerialNumber: cert.SerialNumber.String(),
				},
			},
			Policy: xadesPolicy{
				Identifier: policyURL,
				Hash:       xadesDigest{DigestMethod: dsAlgorithm{Algorithm: algSHA256}, DigestValue: policyHash},
			},
			ClaimedRole: "supplier",
		},
	}

	sig := dsSignature{
		ID: sigID,
		SignedInfo: dsSignedInfo{
			CanonicalizationMethod: dsAlgorithm{Algorithm: algC14N},
			SignatureMethod:        dsAlgorithm{Algorithm: algRSASHA256},
			References: []dsReference{
				{
					ID:           sigID + "-ref0",
					URI:          "",
					Transforms:   &dsTransforms{Transform: []dsAlgorithm{{Algorithm: algEnveloped}}},
					DigestMethod: dsAlgorithm{Algorithm: algSHA256},
					DigestValue:  docDigest,
				},
				{
					Type:         typeSignedProperties,
					URI:          "#" + props.ID,
					DigestMethod: dsAlgorithm{Algorithm: algSHA256},
				},
			},
		},
		KeyInfo: dsKeyInfo{X509Certificate: base64.StdEncoding.EncodeToString(cert.Raw)},
		Object: dsObject{QualifyingProperties: xadesQualifyingProperties{
			Target:           "#" + sigID,
			SignedProperties: props,
		}},
	}

	propsC14N, err := canonicalEmbedded(doc, sig, nsXAdES, "SignedProperties")
	if err != nil {
		return nil, &SigningError{Op: "canonicalizing signed properties", Err: err}
	}

	sig.SignedInfo.References[1].DigestValue = digest(propsC14N)

	infoC14N, err := canonicalEmbedded(doc, sig, dsig.Namespace, "SignedInfo")
	if err != nil {
		return nil, &SigningError{Op: "canonicalizing signed info", Err: err}
	}

	hashed := sha256.Sum256(infoC14N)

	value, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, &SigningError{Op: "signing", Err: err}
	}

	sig.SignatureValue = base64.StdEncoding.EncodeToString(value)

	out, err := embed(doc, sig)
	if err != nil {
		return nil, &SigningError{Op: "encoding signature", Err: err}
	}

	return &Signed{
		Document:    out,
		Digest:      docDigest,
		SignedAt:    signedAt,
		Certificate: cert,
	}, nil
}

// Check decodes m and applies the same certificate checks as Sign without signing anything.
func (s *Signer) Check(m Material) (*x509.Certificate, error) {
	key, cert, err := decode(m)
	defer zeroKey(key)

	if err != nil {
		return nil, err
	}

	if err := s.checkCertificate(cert, key); err != nil {
		return nil, err
	}

	return cert, nil
}

func (s *Signer) checkCertificate(cert *x509.Certificate, key *rsa.PrivateKey) error {
	now := s.now()

	if now.Before(cert.NotBefore) {
		return &CertificateError{Reason: ReasonNotYetValid}
	}

	if now.After(cert.NotAfter) {
		return &CertificateError{Reason: ReasonExpired}
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return &CertificateError{Reason: ReasonKeyMismatch}
	}

	if s.revocation == nil {
		return nil
	}

	revoked, err := s.revocation.IsRevoked(cert)
	if err != nil {
		return &SigningError{Op: "checking revocation", Err: err}
	}

	if revoked {
		return &CertificateError{Reason: ReasonRevoked}
	}

	return nil
}

// Verify checks the document digest, the signed properties digest and the RSA signature of a
// signed document over their C14N 1.0 form, and returns the signing certificate.
func Verify(signed []byte) (*x509.Certificate, error) {
	tree, err := parse(signed)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document: %w", ErrInvalidSignature, err)
	}

	sigEl, err := etreeutils.NSFindOne(tree.Root(), dsig.Namespace, "Signature")
	if err != nil || sigEl == nil {
		return nil, fmt.Errorf("%w: signature element not found", ErrInvalidSignature)
	}

	info := sigEl.SelectElement("SignedInfo")
	if info == nil {
		return nil, fmt.Errorf("%w: signed info not found", ErrInvalidSignature)
	}

	if alg := childAttr(info, "CanonicalizationMethod", "Algorithm"); alg != algC14N {
		return nil, fmt.Errorf("%w: unsupported canonicalization %q", ErrInvalidSignature, alg)
	}

	der, err := base64.StdEncoding.DecodeString(childText(sigEl, "KeyInfo", "X509Data", "X509Certificate"))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding certificate: %w", ErrInvalidSignature, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %w", ErrInvalidSignature, err)
	}

	var docOK, propsOK bool

	for _, ref := range info.SelectElements("Reference") {
		want := childText(ref, "DigestValue")

		switch {
		case ref.SelectAttrValue("URI", "") == "":
			got, err := envelopedDigest(tree)
			if err != nil {
				return nil, fmt.Errorf("%w: canonicalizing document: %w", ErrInvalidSignature, err)
			}

			docOK = got == want
		case ref.SelectAttrValue("Type", "") == typeSignedProperties:
			got, err := signedPropertiesDigest(sigEl, strings.TrimPrefix(ref.SelectAttrValue("URI", ""), "#"))
			if err != nil {
				return nil, err
			}

			propsOK = got == want
		}
	}

	if !docOK {
		return nil, fmt.Errorf("%w: document digest mismatch", ErrInvalidSignature)
	}

	if !propsOK {
		return nil, fmt.Errorf("%w: signed properties digest mismatch", ErrInvalidSignature)
	}

	infoC14N, err := c14n.Canonicalize(info)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalizing signed info: %w", ErrInvalidSignature, err)
	}

	value, err := base64.StdEncoding.DecodeString(childText(sigEl, "SignatureValue"))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding signature value: %w", ErrInvalidSignature, err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is not RSA", ErrInvalidSignature)
	}

	hashed := sha256.Sum256(infoC14N)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return cert, nil
}

func signedPropertiesDigest(sigEl *etree.Element, id string) (string, error) {
	ctx, err := etreeutils.NSBuildParentContext(sigEl)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	props, err := etreeutils.NSFindOneCtx(ctx, sigEl, nsXAdES, "SignedProperties")
	if err != nil || props == nil || props.SelectAttrValue("Id", "") != id {
		return "", fmt.Errorf("%w: signed properties %q not found", ErrInvalidSignature, id)
	}

	got, err := canonicalDigest(props)
	if err != nil {
		return "", fmt.Errorf("%w: canonicalizing signed properties: %w", ErrInvalidSignature, err)
	}

	return got, nil
}
