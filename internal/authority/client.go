package authority

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/metrics"
)

const (
	statusAccepted = "00"
	statusRejected = "99"
)

// GetStatus answers these codes when DIAN holds no document for the track id.
var notFoundCodes = map[string]bool{"66": true, "90": true}

const maxResponseBytes = 8 << 20

type ClientConfig struct {
	URL              string
	RateLimit        float64
	Burst            int
	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	TestPollInterval time.Duration
}

// Client speaks SOAP 1.2 to the DIAN WcfDianCustomerServices endpoint.
type Client struct {
	url          string
	http         *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	catalog      *Catalog
	pollInterval time.Duration
	metrics      *metrics.Collector
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

func WithClientMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(cfg ClientConfig, catalog *Catalog, opts ...ClientOption) *Client {
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	c := &Client{
		url:          cfg.URL,
		http:         &http.Client{},
		limiter:      rate.NewLimiter(rate.Inf, 0),
		catalog:      catalog,
		pollInterval: cfg.TestPollInterval,
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}

	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dian",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("authority circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
			c.metrics.SetBreakerState(name, int(to))
		},
	})

	return c
}

// Send transmits one signed document. Every failure is folded into the Result.
func (c *Client) Send(ctx context.Context, req Request) Result {
	name, zipped, err := packDocument(req)
	if err != nil {
		return transportResult(&TransportError{Cause: err, Permanent: true})
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	bill := &sendBill{FileName: name, ContentFile: base64.StdEncoding.EncodeToString(zipped)}

	if req.TestSetID != "" {
		bill.TestSetID = req.TestSetID
		return c.sendTestSet(ctx, key, bill)
	}

	env, terr := c.call(ctx, opSendBillSync, key, soapBody{SendBillSync: bill})
	if terr != nil {
		return transportResult(terr)
	}

	if env.Body.SendBillSync == nil {
		return transportResult(&TransportError{Cause: errors.New("response has no SendBillSyncResult"), Ambiguous: true})
	}

	return c.interpret(env.Body.SendBillSync.Result, false)
}

// Status asks DIAN what it holds for a CUFE/CUDE. It never resends anything.
func (c *Client) Status(ctx context.Context, code string) Result {
	env, terr := c.call(ctx, opGetStatus, uuid.NewString(), soapBody{GetStatus: &statusQuery{TrackID: code}})
	if terr != nil {
		return transportResult(terr)
	}

	if env.Body.GetStatus == nil {
		return transportResult(&TransportError{Cause: errors.New("response has no GetStatusResult")})
	}

	return c.interpret(env.Body.GetStatus.Result, true)
}

// sendTestSet uploads to the habilitación test set and polls the zip key until DIAN settles it
// or ctx ends.
func (c *Client) sendTestSet(ctx context.Context, key string, bill *sendBill) Result {
	env, terr := c.call(ctx, opSendTestSetAsync, key, soapBody{SendTestSetAsync: bill})
	if terr != nil {
		return transportResult(terr)
	}

	if env.Body.SendTestSetAsync == nil {
		return transportResult(&TransportError{Cause: errors.New("response has no SendTestSetAsyncResult"), Ambiguous: true})
	}

	upload := env.Body.SendTestSetAsync.Result
	if upload.ZipKey == "" {
		errs, _ := splitMessages(upload.Errors)
		if len(errs) == 0 {
			errs = append(errs, invoice.AuthorityError{Message: "test set upload returned no zip key"})
		}

		return Result{Outcome: OutcomeRejected, Errors: errs, Technical: c.catalog.Technical(errs)}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return transportResult(&TransportError{
				Cause:     fmt.Errorf("test set %s still validating: %w", upload.ZipKey, ctx.Err()),
				Ambiguous: true,
			})
		case <-timer.C:
		}

		env, terr := c.call(ctx, opGetStatusZip, uuid.NewString(), soapBody{GetStatusZip: &statusQuery{TrackID: upload.ZipKey}})
		if terr != nil {
			terr.Ambiguous = true
			return transportResult(terr)
		}

		if env.Body.GetStatusZip != nil && len(env.Body.GetStatusZip.Responses) > 0 {
			r := c.interpret(env.Body.GetStatusZip.Responses[0], true)
			if r.Outcome == OutcomeAccepted || r.Outcome == OutcomeRejected {
				if r.TrackID == "" {
					r.TrackID = upload.ZipKey
				}

				return r
			}
		}

		timer.Reset(c.pollInterval)
	}
}

func (c *Client) interpret(dr dianResponse, status bool) Result {
	errs, notes := splitMessages(dr.ErrorMessages)

	r := Result{
		TrackID:       dr.XMLDocumentKey,
		StatusCode:    dr.StatusCode,
		Description:   dr.StatusDescription,
		Notifications: notes,
	}

	if r.Description == "" {
		r.Description = dr.StatusMessage
	}

	switch {
	case dr.IsValid || (dr.StatusCode == statusAccepted && len(errs) == 0):
		r.Outcome = OutcomeAccepted

		if dr.XMLBase64Bytes != "" {
			if b, err := base64.StdEncoding.DecodeString(dr.XMLBase64Bytes); err == nil {
				r.ApplicationResponse = b
			}
		}
	case status && notFoundCodes[dr.StatusCode]:
		r.Outcome = OutcomeNotFound
	case !status || dr.StatusCode == statusRejected || len(errs) > 0:
		if len(errs) == 0 {
			errs = append(errs, invoice.AuthorityError{Code: dr.StatusCode, Message: r.Description})
		}

		r.Outcome = OutcomeRejected
		r.Errors = errs
		r.Technical = c.catalog.Technical(errs)
	default:
		r.Outcome = OutcomePending
	}

	return r
}

func (c *Client) call(ctx context.Context, op, key string, body soapBody) (*envelopeResponse, *TransportError) {
	payload, err := envelope(op, c.url, key, body)
	if err != nil {
		return nil, &TransportError{Cause: err, Permanent: true}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("waiting for rate limiter: %w", err)}
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, op, key, payload)
	})
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			return nil, terr
		}

		return nil, &TransportError{Cause: err}
	}

	env, err := decodeEnvelope(out.([]byte))
	if err != nil {
		return nil, &TransportError{Cause: err, Ambiguous: true, StatusCode: http.StatusOK}
	}

	if env.Body.Fault != nil {
		return nil, &TransportError{Cause: env.Body.Fault, StatusCode: http.StatusOK}
	}

	return env, nil
}

// roundTrip marks a failure as ambiguous once the request has been fully written.
func (c *Client) roundTrip(ctx context.Context, op, key string, payload []byte) ([]byte, error) {
	var wrote atomic.Bool

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Cause: err, Permanent: true}
	}

	req.Header.Set("Content-Type", fmt.Sprintf(`application/soap+xml; charset=utf-8; action="%s%s"`, actionPrefix, op))
	req.Header.Set("Idempotency-Key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Cause: err, Ambiguous: wrote.Load()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("reading response: %w", err), Ambiguous: true, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode == http.StatusOK {
		return data, nil
	}

	terr := &TransportError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("unexpected status %s", resp.Status)}

	switch code := resp.StatusCode; {
	case code == http.StatusInternalServerError:
		if env, err := decodeEnvelope(data); err == nil && env.Body.Fault != nil {
			terr.Cause = env.Body.Fault
			break
		}

		terr.Ambiguous = true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code == http.StatusServiceUnavailable:
	case code >= 400 && code < 500:
		terr.Permanent = true
	default:
		terr.Ambiguous = true
	}

	return nil, terr
}
