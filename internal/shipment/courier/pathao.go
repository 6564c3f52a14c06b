package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/pkg/httpclient"
)

type PathaoConfig struct {
	ClientID     string
	ClientSecret string
	StoreID      int64
	BaseURL      string
}

// Pathao books through the merchant API with a client-credentials token,
// refreshed shortly before it expires.
type Pathao struct {
	cfg    PathaoConfig
	client *httpclient.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewPathao(cfg PathaoConfig, client *httpclient.Client) *Pathao {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-hermes.pathao.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Pathao{cfg: cfg, client: client, now: time.Now}
}

func (p *Pathao) Name() string { return "pathao" }

func (p *Pathao) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}
	body, _ := json.Marshal(map[string]string{
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	})
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if _, err := call(ctx, p.client, "pathao", httpclient.Request{
		Method: http.MethodPost, URL: p.cfg.BaseURL + "/aladdin/api/v1/issue-token", Body: body,
	}, &out); err != nil {
		return "", err
	}
	p.token = out.AccessToken
	p.expires = p.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *Pathao) authorized(ctx context.Context, req httpclient.Request) (httpclient.Request, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return req, err
	}
	req.Header = http.Header{}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (p *Pathao) CreateShipment(ctx context.Context, b Booking) (Consignment, error) {
	body, err := json.Marshal(map[string]any{
		"store_id":            p.cfg.StoreID,
		"merchant_order_id":   b.OrderNumber,
		"recipient_name":      b.Recipient.Name,
		"recipient_phone":     b.Recipient.Phone,
		"recipient_address":   strings.TrimSpace(b.Recipient.Address + ", " + b.Recipient.City),
		"delivery_type":       48,
		"item_type":           2,
		"item_quantity":       b.ItemCount,
		"item_weight":         "0.5",
		"amount_to_collect":   decimal.New(b.CollectCents, -2).Round(0).IntPart(),
		"special_instruction": b.Note,
	})
	if err != nil {
		return Consignment{}, err
	}
	req, err := p.authorized(ctx, httpclient.Request{Method: http.MethodPost, URL: p.cfg.BaseURL + "/aladdin/api/v1/orders", Body: body})
	if err != nil {
		return Consignment{}, err
	}
	var out struct {
		Data struct {
			ConsignmentID string `json:"consignment_id"`
		} `json:"data"`
	}
	raw, err := call(ctx, p.client, "pathao", req, &out)
	if err != nil {
		return Consignment{Raw: raw}, err
	}
	if out.Data.ConsignmentID == "" {
		return Consignment{Raw: raw}, ErrMalformed.Withf("pathao: missing consignment id")
	}
	return Consignment{TrackingID: out.Data.ConsignmentID, Raw: raw}, nil
}

func (p *Pathao) Track(ctx context.Context, trackingID string) (string, error) {
	req, err := p.authorized(ctx, httpclient.Request{
		Method:    http.MethodGet,
		URL:       p.cfg.BaseURL + "/aladdin/api/v1/orders/" + url.PathEscape(trackingID) + "/info",
		Retryable: true,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Data struct {
			OrderStatus string `json:"order_status"`
		} `json:"data"`
	}
	if _, err := call(ctx, p.client, "pathao", req, &out); err != nil {
		return "", err
	}
	return out.Data.OrderStatus, nil
}

func (p *Pathao) ParseWebhook(payload []byte) (Update, error) {
	var in struct {
		ConsignmentID string `json:"consignment_id"`
		OrderStatus   string `json:"order_status"`
		Status        string `json:"status"`
	}
	if err := decodeWebhook(payload, &in); err != nil {
		return Update{}, err
	}
	status := in.OrderStatus
	if status == "" {
		status = in.Status
	}
	if in.ConsignmentID == "" || status == "" {
		return Update{}, ErrMalformed.Withf("pathao: consignment_id and status are required")
	}
	return Update{TrackingID: in.ConsignmentID, RawStatus: status}, nil
}
