package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"

	"github.com/MrJamesThe3rd/factura/internal/document"
)

const nsXAdES = "http://uri.etsi.org/01903/v1.3.2#"

var c14n = dsig.MakeC14N10RecCanonicalizer()

func parse(data []byte) (*etree.Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, err
	}

	if tree.Root() == nil {
		return nil, errors.New("document has no root element")
	}

	return tree, nil
}

// canonicalDigest hashes the C14N 1.0 form of el, including the namespaces declared on its
// ancestors.
func canonicalDigest(el *etree.Element) (string, error) {
	out, err := c14n.Canonicalize(el)
	if err != nil {
		return "", err
	}

	return digest(out), nil
}

// embed splices the encoded signature into the placeholder of doc. Every other byte of doc is
// kept as given.
func embed(doc []byte, sig dsSignature) ([]byte, error) {
	sigXML, err := xml.Marshal(sig)
	if err != nil {
		return nil, err
	}

	i := bytes.Index(doc, []byte(document.SignaturePlaceholder))
	if i < 0 {
		return nil, errPlaceholder
	}

	open := i + len("<ext:ExtensionContent>")

	out := make([]byte, 0, len(doc)+len(sigXML))
	out = append(out, doc[:open]...)
	out = append(out, sigXML...)
	out = append(out, doc[open:]...)

	return out, nil
}

// canonicalEmbedded returns the C14N 1.0 form of the namespace:tag element of sig as it sits
// inside doc.
func canonicalEmbedded(doc []byte, sig dsSignature, namespace, tag string) ([]byte, error) {
	signed, err := embed(doc, sig)
	if err != nil {
		return nil, err
	}

	tree, err := parse(signed)
	if err != nil {
		return nil, err
	}

	el, err := etreeutils.NSFindOne(tree.Root(), namespace, tag)
	if err != nil {
		return nil, err
	}

	if el == nil {
		return nil, fmt.Errorf("%s element not found", tag)
	}

	return c14n.Canonicalize(el)
}

// envelopedDigest applies the enveloped-signature transform to a copy of tree and hashes the
// canonical result.
func envelopedDigest(tree *etree.Document) (string, error) {
	unsigned := tree.Copy()

	sig, err := etreeutils.NSFindOne(unsigned.Root(), dsig.Namespace, "Signature")
	if err != nil {
		return "", err
	}

	if sig != nil && sig.Parent() != nil {
		sig.Parent().RemoveChild(sig)
	}

	return canonicalDigest(unsigned.Root())
}

func childText(el *etree.Element, path ...string) string {
	for _, tag := range path {
		if el = el.SelectElement(tag); el == nil {
			return ""
		}
	}

	return strings.Join(strings.Fields(el.Text()), "")
}

func childAttr(el *etree.Element, tag, attr string) string {
	if el = el.SelectElement(tag); el == nil {
		return ""
	}

	return el.SelectAttrValue(attr, "")
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}
