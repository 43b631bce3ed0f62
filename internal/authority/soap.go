package authority

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/MrJamesThe3rd/factura/internal/encoding"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

const (
	nsSOAP       = "http://www.w3.org/2003/05/soap-envelope"
	nsWCF        = "http://wcf.dian.colombia"
	nsAddressing = "http://www.w3.org/2005/08/addressing"
	actionPrefix = "http://wcf.dian.colombia/IWcfDianCustomerServices/"
)

const (
	opSendBillSync     = "SendBillSync"
	opSendTestSetAsync = "SendTestSetAsync"
	opGetStatus        = "GetStatus"
	opGetStatusZip     = "GetStatusZip"
)

type soapEnvelope struct {
	XMLName xml.Name   `xml:"soap:Envelope"`
	SOAP    string     `xml:"xmlns:soap,attr"`
	WCF     string     `xml:"xmlns:wcf,attr"`
	Header  soapHeader `xml:"soap:Header"`
	Body    soapBody   `xml:"soap:Body"`
}

type soapHeader struct {
	WSA       string `xml:"xmlns:wsa,attr"`
	Action    string `xml:"wsa:Action"`
	MessageID string `xml:"wsa:MessageID"`
	To        string `xml:"wsa:To"`
}

type soapBody struct {
	SendBillSync     *sendBill    `xml:"wcf:SendBillSync"`
	SendTestSetAsync *sendBill    `xml:"wcf:SendTestSetAsync"`
	GetStatus        *statusQuery `xml:"wcf:GetStatus"`
	GetStatusZip     *statusQuery `xml:"wcf:GetStatusZip"`
}

type sendBill struct {
	FileName    string `xml:"wcf:fileName"`
	ContentFile string `xml:"wcf:contentFile"`
	TestSetID   string `xml:"wcf:testSetId,omitempty"`
}

type statusQuery struct {
	TrackID string `xml:"wcf:trackId"`
}

func envelope(op, to, messageID string, body soapBody) ([]byte, error) {
	env := soapEnvelope{
		SOAP: nsSOAP,
		WCF:  nsWCF,
		Header: soapHeader{
			WSA:       nsAddressing,
			Action:    actionPrefix + op,
			MessageID: "urn:uuid:" + messageID,
			To:        to,
		},
		Body: body,
	}

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s envelope: %w", op, err)
	}

	return append([]byte(xml.Header), out...), nil
}

// Response side. Elements are matched by local name; DIAN mixes several prefixes.

type envelopeResponse struct {
	Body struct {
		Fault        *soapFault `xml:"Fault"`
		SendBillSync *struct {
			Result dianResponse `xml:"SendBillSyncResult"`
		} `xml:"SendBillSyncResponse"`
		GetStatus *struct {
			Result dianResponse `xml:"GetStatusResult"`
		} `xml:"GetStatusResponse"`
		SendTestSetAsync *struct {
			Result uploadResponse `xml:"SendTestSetAsyncResult"`
		} `xml:"SendTestSetAsyncResponse"`
		GetStatusZip *struct {
			Responses []dianResponse `xml:"GetStatusZipResult>DianResponse"`
		} `xml:"GetStatusZipResponse"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"Code>Value"`
	Reason string `xml:"Reason>Text"`
}

type dianResponse struct {
	ErrorMessages     []string `xml:"ErrorMessage>string"`
	IsValid           bool     `xml:"IsValid"`
	StatusCode        string   `xml:"StatusCode"`
	StatusDescription string   `xml:"StatusDescription"`
	StatusMessage     string   `xml:"StatusMessage"`
	XMLBase64Bytes    string   `xml:"XmlBase64Bytes"`
	XMLDocumentKey    string   `xml:"XmlDocumentKey"`
}

type uploadResponse struct {
	ZipKey string   `xml:"ZipKey"`
	Errors []string `xml:"ErrorMessageList>XmlParamsResponseTrackId>ProcessedMessage"`
}

func decodeEnvelope(data []byte) (*envelopeResponse, error) {
	var env envelopeResponse

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = encoding.CharsetReader

	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding soap response: %w", err)
	}

	return &env, nil
}

func (f *soapFault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, strings.TrimSpace(f.Reason))
}

var filePrefixes = map[invoice.DocumentType]string{
	invoice.DocumentInvoice:    "fv",
	invoice.DocumentCreditNote: "nc",
	invoice.DocumentDebitNote:  "nd",
}

// fileName follows the DIAN naming rule: prefix, 10-digit NIT, 3-digit PPP, 2-digit year
// and the sequence as 8 hex digits.
func fileName(prefix, nit string, year int, seq int64) string {
	if len(nit) < 10 {
		nit = strings.Repeat("0", 10-len(nit)) + nit
	}

	return fmt.Sprintf("%s%s000%02d%08x", prefix, nit, year%100, seq)
}

func packDocument(req Request) (string, []byte, error) {
	prefix, ok := filePrefixes[req.DocumentType]
	if !ok {
		return "", nil, fmt.Errorf("unknown document type %q", req.DocumentType)
	}

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   fileName(prefix, req.SupplierNIT, req.Year, req.Sequence) + ".xml",
		Method: zip.Deflate,
	})
	if err != nil {
		return "", nil, fmt.Errorf("creating zip entry: %w", err)
	}

	if _, err := w.Write(req.Document); err != nil {
		return "", nil, fmt.Errorf("writing zip entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return "", nil, fmt.Errorf("closing zip: %w", err)
	}

	return fileName("z", req.SupplierNIT, req.Year, req.Sequence) + ".zip", buf.Bytes(), nil
}
