package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/pkg/httpclient"
	"github.com/mishimanto/ecommerce/pkg/money"
)

type SSLCommerzConfig struct {
	StoreID       string
	StorePassword string
	BaseURL       string
}

// SSLCommerz is the hosted-page gateway. The customer pays on the
// provider's page and the provider posts a signed IPN back.
type SSLCommerz struct {
	cfg    SSLCommerzConfig
	client *httpclient.Client
}

func NewSSLCommerz(cfg SSLCommerzConfig, client *httpclient.Client) *SSLCommerz {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sandbox.sslcommerz.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SSLCommerz{cfg: cfg, client: client}
}

func (s *SSLCommerz) Method() domain.Method { return domain.MethodSSLCommerz }
func (s *SSLCommerz) SignatureHeader() string { return "" }
func (s *SSLCommerz) AcceptsCallbacks() bool { return true }
func (s *SSLCommerz) Verifier() Verifier { return sslVerifier{password: s.cfg.StorePassword} }

func (s *SSLCommerz) credentials() url.Values {
	v := url.Values{}
	v.Set("store_id", s.cfg.StoreID)
	v.Set("store_passwd", s.cfg.StorePassword)
	return v
}

func (s *SSLCommerz) Initialize(ctx context.Context, req InitRequest) (Session, error) {
	p := req.Payment
	form := s.credentials()
	form.Set("total_amount", money.Format(p.AmountCents))
	form.Set("currency", p.Currency)
	form.Set("tran_id", p.OrderNumber)
	form.Set("success_url", req.URLs.Success)
	form.Set("fail_url", req.URLs.Fail)
	form.Set("cancel_url", req.URLs.Cancel)
	form.Set("ipn_url", req.URLs.Notify)
	form.Set("cus_name", req.Customer.Name)
	form.Set("cus_email", req.Customer.Email)
	form.Set("cus_phone", req.Customer.Phone)
	form.Set("cus_add1", req.Customer.Address)
	form.Set("cus_city", req.Customer.City)
	form.Set("cus_postcode", req.Customer.Postcode)
	form.Set("cus_country", req.Customer.Country)
	form.Set("shipping_method", "NO")
	form.Set("product_name", "Order "+p.OrderNumber)
	form.Set("product_category", "ecommerce")
	form.Set("product_profile", "general")
	form.Set("value_a", p.ID)

	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	// no idempotency key on this endpoint, so a failed init is not retried
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    s.cfg.BaseURL + "/gwprocess/v4/api.php",
		Header: h,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return Session{}, fmt.Errorf("sslcommerz init: %w", err)
	}
	var out struct {
		Status         string `json:"status"`
		FailedReason   string `json:"failedreason"`
		SessionKey     string `json:"sessionkey"`
		GatewayPageURL string `json:"GatewayPageURL"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Session{}, fmt.Errorf("sslcommerz init decode: %w", err)
	}
	if !resp.OK() || out.Status != "SUCCESS" || out.GatewayPageURL == "" {
		return Session{}, fmt.Errorf("sslcommerz init: status %d: %s", resp.Status, out.FailedReason)
	}
	return Session{Reference: out.SessionKey, RedirectURL: out.GatewayPageURL, Raw: resp.Body}, nil
}

type sslTransaction struct {
	ValID      string `json:"val_id"`
	Status     string `json:"status"`
	TranID     string `json:"tran_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	BankTranID string `json:"bank_tran_id"`
	ValueA     string `json:"value_a"`
	Error      string `json:"error"`
}

func (s *SSLCommerz) query(ctx context.Context, params url.Values, out any) (json.RawMessage, error) {
	q := s.credentials()
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("format", "json")
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		URL:       s.cfg.BaseURL + "/validator/api/merchantTransIDvalidationAPI.php?" + q.Encode(),
		Retryable: params.Get("refund_amount") == "",
	})
	if err != nil {
		return nil, fmt.Errorf("sslcommerz query: %w", err)
	}
	if !resp.OK() {
		return resp.Body, fmt.Errorf("sslcommerz query: status %d", resp.Status)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp.Body, fmt.Errorf("sslcommerz decode: %w", err)
	}
	return resp.Body, nil
}

func (s *SSLCommerz) Verify(ctx context.Context, p domain.Payment) (Verification, error) {
	var out struct {
		APIConnect string           `json:"APIConnect"`
		Element    []sslTransaction `json:"element"`
	}
	raw, err := s.query(ctx, url.Values{"tran_id": {p.OrderNumber}}, &out)
	if err != nil {
		return Verification{}, err
	}
	if out.APIConnect != "DONE" {
		return Verification{}, fmt.Errorf("sslcommerz validation: %s", out.APIConnect)
	}
	// several attempts share the order number; value_a names ours
	var tx *sslTransaction
	for i := range out.Element {
		if out.Element[i].ValueA == p.ID {
			tx = &out.Element[i]
			break
		}
	}
	if tx == nil {
		return Verification{}, nil
	}
	outcome, d, err := tx.settlement()
	if err != nil {
		return Verification{}, err
	}
	d.Raw = raw
	return Verification{Outcome: outcome, Details: d}, nil
}

func (t sslTransaction) settlement() (domain.Outcome, domain.Details, error) {
	d := domain.Details{TransactionID: t.BankTranID, Currency: strings.ToUpper(t.Currency), Reason: t.Error}
	if d.TransactionID == "" {
		d.TransactionID = t.ValID
	}
	if t.Amount != "" {
		amount, err := money.Parse(t.Amount)
		if err != nil {
			return "", domain.Details{}, ErrMalformed.Wrap(err)
		}
		d.AmountCents = amount
	}
	switch strings.ToUpper(t.Status) {
	case "VALID", "VALIDATED":
		if t.Amount == "" {
			return "", domain.Details{}, ErrMalformed.Withf("missing amount")
		}
		return domain.OutcomeSucceeded, d, nil
	case "FAILED", "CANCELLED", "EXPIRED":
		if d.Reason == "" {
			d.Reason = strings.ToLower(t.Status)
		}
		return domain.OutcomeFailed, d, nil
	}
	return "", d, nil
}

func (s *SSLCommerz) Refund(ctx context.Context, p domain.Payment, amountCents int64, reason string) (RefundResult, error) {
	if p.TransactionID == "" {
		return RefundResult{}, ErrNoReference
	}
	var out struct {
		APIConnect  string `json:"APIConnect"`
		Status      string `json:"status"`
		RefundRefID string `json:"refund_ref_id"`
		ErrorReason string `json:"errorReason"`
	}
	raw, err := s.query(ctx, url.Values{
		"bank_tran_id":   {p.TransactionID},
		"refund_amount":  {money.Format(amountCents)},
		"refund_remarks": {reason},
	}, &out)
	if err != nil {
		return RefundResult{Raw: raw}, err
	}
	done := out.APIConnect == "DONE"
	return RefundResult{
		Succeeded: done && out.Status == "success",
		Pending:   done && out.Status == "processing",
		RefundID:  out.RefundRefID,
		Raw:       raw,
	}, nil
}

// ParseCallback reads a form-encoded IPN.
func (s *SSLCommerz) ParseCallback(payload []byte) (Callback, error) {
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return Callback{}, ErrMalformed.Wrap(err)
	}
	tx := sslTransaction{
		ValID:      form.Get("val_id"),
		Status:     form.Get("status"),
		TranID:     form.Get("tran_id"),
		Amount:     form.Get("amount"),
		Currency:   form.Get("currency"),
		BankTranID: form.Get("bank_tran_id"),
		ValueA:     form.Get("value_a"),
		Error:      form.Get("error"),
	}
	if tx.TranID == "" || tx.Status == "" {
		return Callback{}, ErrMalformed.Withf("missing tran_id or status")
	}
	cb := Callback{Event: "ipn." + strings.ToLower(tx.Status)}
	outcome, d, err := tx.settlement()
	if err != nil {
		return Callback{}, err
	}
	if outcome == "" {
		cb.Ignored = true
		return cb, nil
	}
	cb.Reference = domain.Reference{Kind: domain.RefOrderNumber, Value: tx.TranID, Method: domain.MethodSSLCommerz}
	if tx.ValueA != "" {
		cb.Reference = domain.Reference{Kind: domain.RefPaymentID, Value: tx.ValueA, Method: domain.MethodSSLCommerz}
	}
	raw, _ := json.Marshal(flatten(form))
	d.Raw = raw
	cb.Outcome, cb.Details = outcome, d
	return cb, nil
}

func flatten(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

type sslVerifier struct {
	password string
}

// IPN fields that settlement reads. verify_key must list the required ones,
// and the optional ones whenever the form carries them.
var (
	sslSignedRequired = []string{"tran_id", "status"}
	sslSignedIfSent   = []string{"amount", "currency", "value_a", "val_id", "bank_tran_id"}
)

// Verify checks verify_sign inside the IPN: md5 over the fields listed in
// verify_key plus store_passwd=md5(password), sorted by name and joined as
// k=v&.
func (v sslVerifier) Verify(payload []byte, _ string) bool {
	form, err := url.ParseQuery(string(payload))
	if err != nil || v.password == "" {
		return false
	}
	sign, keys := form.Get("verify_sign"), form.Get("verify_key")
	if sign == "" || keys == "" || !coversSettlementFields(form, keys) {
		return false
	}
	expected := SSLCommerzSign(form, v.password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(sign)), []byte(expected)) == 1
}

func coversSettlementFields(form url.Values, verifyKey string) bool {
	signed := map[string]bool{}
	for _, k := range strings.Split(verifyKey, ",") {
		signed[strings.TrimSpace(k)] = true
	}
	for _, k := range sslSignedRequired {
		if !signed[k] {
			return false
		}
	}
	for _, k := range sslSignedIfSent {
		if form.Has(k) && !signed[k] {
			return false
		}
	}
	return true
}

// SSLCommerzSign computes the verify_sign value for an IPN form.
func SSLCommerzSign(form url.Values, password string) string {
	pw := md5.Sum([]byte(password))
	fields := map[string]string{"store_passwd": hex.EncodeToString(pw[:])}
	for _, k := range strings.Split(form.Get("verify_key"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			fields[k] = form.Get(k)
		}
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	slices.Sort(names)
	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('&')
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
