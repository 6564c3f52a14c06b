package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/pkg/httpclient"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	stripeTolerance       = 5 * time.Minute
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// Stripe is the card gateway: the server creates a payment intent, the
// client confirms it, and a webhook reports the result.
type Stripe struct {
	cfg    StripeConfig
	client *httpclient.Client
	now    func() time.Time
}

func NewStripe(cfg StripeConfig, client *httpclient.Client) *Stripe {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Stripe{cfg: cfg, client: client, now: time.Now}
}

func (s *Stripe) Method() domain.Method { return domain.MethodStripe }
func (s *Stripe) SignatureHeader() string { return stripeSignatureHeader }
func (s *Stripe) AcceptsCallbacks() bool { return true }
func (s *Stripe) Verifier() Verifier { return stripeVerifier{secret: []byte(s.cfg.WebhookSecret), now: s.now} }

type stripeIntent struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	AmountReceived   int64  `json:"amount_received"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ClientSecret     string `json:"client_secret"`
	LatestCharge     string `json:"latest_charge"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Metadata map[string]string `json:"metadata"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) call(ctx context.Context, method, path string, form url.Values, idemKey string, out any) (json.RawMessage, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	req := httpclient.Request{Method: method, URL: s.cfg.BaseURL + path, Header: h, Retryable: method == http.MethodGet}
	if form != nil {
		h.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Body = []byte(form.Encode())
	}
	if idemKey != "" {
		h.Set("Idempotency-Key", idemKey)
		req.Retryable = true
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stripe %s %s: %w", method, path, err)
	}
	if !resp.OK() {
		var se stripeError
		_ = json.Unmarshal(resp.Body, &se)
		return resp.Body, fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.Status, se.Error.Message)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp.Body, fmt.Errorf("stripe decode: %w", err)
	}
	return resp.Body, nil
}

func (s *Stripe) Initialize(ctx context.Context, req InitRequest) (Session, error) {
	p := req.Payment
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountCents, 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("metadata[payment_id]", p.ID)
	form.Set("metadata[order_number]", p.OrderNumber)
	if req.Customer.Email != "" {
		form.Set("receipt_email", req.Customer.Email)
	}

	var intent stripeIntent
	raw, err := s.call(ctx, http.MethodPost, "/v1/payment_intents", form, "pi-"+p.ID, &intent)
	if err != nil {
		return Session{}, err
	}
	return Session{Reference: intent.ID, ClientSecret: intent.ClientSecret, Raw: raw}, nil
}

func (s *Stripe) Verify(ctx context.Context, p domain.Payment) (Verification, error) {
	if p.GatewayReference == "" {
		return Verification{}, ErrNoReference
	}
	var intent stripeIntent
	raw, err := s.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(p.GatewayReference), nil, "", &intent)
	if err != nil {
		return Verification{}, err
	}
	outcome, d := intent.settlement()
	d.Raw = raw
	return Verification{Outcome: outcome, Details: d}, nil
}

func (in stripeIntent) settlement() (domain.Outcome, domain.Details) {
	d := domain.Details{
		TransactionID: in.LatestCharge,
		AmountCents:   in.Amount,
		Currency:      strings.ToUpper(in.Currency),
	}
	if d.TransactionID == "" {
		d.TransactionID = in.ID
	}
	switch {
	case in.Status == "succeeded":
		return domain.OutcomeSucceeded, d
	case in.Status == "canceled":
		d.Reason = "canceled"
		return domain.OutcomeFailed, d
	case in.LastPaymentError != nil:
		d.Reason = in.LastPaymentError.Message
		if d.Reason == "" {
			d.Reason = in.LastPaymentError.Code
		}
		return domain.OutcomeFailed, d
	}
	return "", d
}

func (s *Stripe) Refund(ctx context.Context, p domain.Payment, amountCents int64, reason string) (RefundResult, error) {
	if p.GatewayReference == "" {
		return RefundResult{}, ErrNoReference
	}
	form := url.Values{}
	form.Set("payment_intent", p.GatewayReference)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	// keyed on the refunded balance so a retried request cannot refund twice
	key := fmt.Sprintf("re-%s-%d-%d", p.ID, p.RefundedCents, amountCents)
	raw, err := s.call(ctx, http.MethodPost, "/v1/refunds", form, key, &out)
	if err != nil {
		return RefundResult{Raw: raw}, err
	}
	return RefundResult{
		Succeeded: out.Status == "succeeded",
		Pending:   out.Status == "pending" || out.Status == "requires_action",
		RefundID:  out.ID,
		Raw:       raw,
	}, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object stripeIntent `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ParseCallback(payload []byte) (Callback, error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Callback{}, ErrMalformed.Wrap(err)
	}
	if ev.Type == "" {
		return Callback{}, ErrMalformed.Withf("missing event type")
	}
	cb := Callback{Event: ev.Type}
	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		// disputes, refunds and the rest are audited but not applied
		cb.Ignored = true
		return cb, nil
	}
	obj := ev.Data.Object
	if obj.ID == "" {
		return Callback{}, ErrMalformed.Withf("missing payment intent id")
	}
	cb.Reference = domain.Reference{Kind: domain.RefGatewayReference, Value: obj.ID, Method: domain.MethodStripe}
	outcome, d := obj.settlement()
	if ev.Type == "payment_intent.succeeded" {
		outcome = domain.OutcomeSucceeded
	} else {
		outcome = domain.OutcomeFailed
		if d.Reason == "" {
			d.Reason = "payment_failed"
		}
	}
	d.Raw = json.RawMessage(payload)
	cb.Outcome, cb.Details = outcome, d
	return cb, nil
}

type stripeVerifier struct {
	secret []byte
	now    func() time.Time
}

// Verify checks a "t=<unix>,v1=<hex>" header against HMAC-SHA256 of
// "<t>.<payload>" and rejects timestamps outside the tolerance.
func (v stripeVerifier) Verify(payload []byte, header string) bool {
	if len(v.secret) == 0 || header == "" {
		return false
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return false
	}
	if d := v.now().Sub(time.Unix(sec, 0)); d > stripeTolerance || d < -stripeTolerance {
		return false
	}
	expected := StripeSignature(v.secret, sec, payload)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// StripeSignature computes the v1 signature for a payload sent at ts.
func StripeSignature(secret []byte, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// StripeHeader builds a Stripe-Signature header value.
func StripeHeader(secret []byte, ts int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, StripeSignature(secret, ts, payload))
}
