package signer

import "encoding/xml"

const (
	algC14N              = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	algRSASHA256         = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algSHA256            = "http://www.w3.org/2001/04/xmlenc#sha256"
	algEnveloped         = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	typeSignedProperties = "http://uri.etsi.org/01903#SignedProperties"

	policyURL  = "https://facturaelectronica.dian.gov.co/politicadefirma/v2/politicadefirmav2.pdf"
	policyHash = "dMoMvtcG5aIzgYo0tIsSQeVJBDnUnfSOfBpxXrmor0Y="
)

type dsSignature struct {
	XMLName        xml.Name     `xml:"ds:Signature"`
	ID             string       `xml:"Id,attr"`
	SignedInfo     dsSignedInfo `xml:"ds:SignedInfo"`
	SignatureValue string       `xml:"ds:SignatureValue"`
	KeyInfo        dsKeyInfo    `xml:"ds:KeyInfo"`
	Object         dsObject     `xml:"ds:Object"`
}

type dsSignedInfo struct {
	XMLName                xml.Name      `xml:"ds:SignedInfo"`
	CanonicalizationMethod dsAlgorithm   `xml:"ds:CanonicalizationMethod"`
	SignatureMethod        dsAlgorithm   `xml:"ds:SignatureMethod"`
	References             []dsReference `xml:"ds:Reference"`
}

type dsAlgorithm struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type dsReference struct {
	ID           string        `xml:"Id,attr,omitempty"`
	Type         string        `xml:"Type,attr,omitempty"`
	URI          string        `xml:"URI,attr"`
	Transforms   *dsTransforms `xml:"ds:Transforms,omitempty"`
	DigestMethod dsAlgorithm   `xml:"ds:DigestMethod"`
	DigestValue  string        `xml:"ds:DigestValue"`
}

type dsTransforms struct {
	Transform []dsAlgorithm `xml:"ds:Transform"`
}

type dsKeyInfo struct {
	X509Certificate string `xml:"ds:X509Data>ds:X509Certificate"`
}

type dsObject struct {
	QualifyingProperties xadesQualifyingProperties `xml:"xades:QualifyingProperties"`
}

type xadesQualifyingProperties struct {
	Target           string                `xml:"Target,attr"`
	SignedProperties xadesSignedProperties `xml:"xades:SignedProperties"`
}

type xadesSignedProperties struct {
	XMLName   xml.Name                       `xml:"xades:SignedProperties"`
	ID        string                         `xml:"Id,attr"`
	Signature xadesSignedSignatureProperties `xml:"xades:SignedSignatureProperties"`
}

type xadesSignedSignatureProperties struct {
	SigningTime        string      `xml:"xades:SigningTime"`
	SigningCertificate xadesCert   `xml:"xades:SigningCertificate>xades:Cert"`
	Policy             xadesPolicy `xml:"xades:SignaturePolicyIdentifier>xades:SignaturePolicyId"`
	ClaimedRole        string      `xml:"xades:SignerRole>xades:ClaimedRoles>xades:ClaimedRole"`
}

type xadesCert struct {
	CertDigest   xadesDigest       `xml:"xades:CertDigest"`
	IssuerSerial xadesIssuerSerial `xml:"xades:IssuerSerial"`
}

type xadesDigest struct {
	DigestMethod dsAlgorithm `xml:"ds:DigestMethod"`
	DigestValue  string      `xml:"ds:DigestValue"`
}

type xadesIssuerSerial struct {
	IssuerName   string `xml:"ds:X509IssuerName"`
	SerialNumber string `xml:"ds:X509SerialNumber"`
}

type xadesPolicy struct {
	Identifier string      `xml:"xades:SigPolicyId>xades:Identifier"`
	Hash       xadesDigest `xml:"xades:SigPolicyHash"`
}
