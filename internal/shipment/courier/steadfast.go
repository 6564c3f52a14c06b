package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/pkg/httpclient"
)

type SteadfastConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
}

type Steadfast struct {
	cfg    SteadfastConfig
	client *httpclient.Client
}

func NewSteadfast(cfg SteadfastConfig, client *httpclient.Client) *Steadfast {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://portal.packzy.com/api/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Steadfast{cfg: cfg, client: client}
}

func (s *Steadfast) Name() string { return "steadfast" }

func (s *Steadfast) headers() http.Header {
	h := http.Header{}
	h.Set("Api-Key", s.cfg.APIKey)
	h.Set("Secret-Key", s.cfg.SecretKey)
	return h
}

func (s *Steadfast) CreateShipment(ctx context.Context, b Booking) (Consignment, error) {
	body, err := json.Marshal(map[string]any{
		"invoice":           b.OrderNumber,
		"recipient_name":    b.Recipient.Name,
		"recipient_phone":   b.Recipient.Phone,
		"recipient_address": strings.TrimSpace(b.Recipient.Address + ", " + b.Recipient.City),
		"cod_amount":        decimal.New(b.CollectCents, -2).StringFixed(2),
		"note":              b.Note,
	})
	if err != nil {
		return Consignment{}, err
	}
	var out struct {
		Consignment struct {
			ConsignmentID int64  `json:"consignment_id"`
			TrackingCode  string `json:"tracking_code"`
		} `json:"consignment"`
	}
	raw, err := call(ctx, s.client, "steadfast", httpclient.Request{
		Method: http.MethodPost, URL: s.cfg.BaseURL + "/create_order", Header: s.headers(), Body: body,
	}, &out)
	if err != nil {
		return Consignment{Raw: raw}, err
	}
	if out.Consignment.TrackingCode == "" {
		return Consignment{Raw: raw}, ErrMalformed.Withf("steadfast: missing tracking code")
	}
	return Consignment{TrackingID: out.Consignment.TrackingCode, Raw: raw}, nil
}

func (s *Steadfast) Track(ctx context.Context, trackingID string) (string, error) {
	var out struct {
		DeliveryStatus string `json:"delivery_status"`
	}
	if _, err := call(ctx, s.client, "steadfast", httpclient.Request{
		Method:    http.MethodGet,
		URL:       s.cfg.BaseURL + "/status_by_trackingcode/" + url.PathEscape(trackingID),
		Header:    s.headers(),
		Retryable: true,
	}, &out); err != nil {
		return "", err
	}
	return out.DeliveryStatus, nil
}

func (s *Steadfast) ParseWebhook(payload []byte) (Update, error) {
	var in struct {
		TrackingCode string `json:"tracking_code"`
		Status       string `json:"status"`
	}
	if err := decodeWebhook(payload, &in); err != nil {
		return Update{}, err
	}
	if in.TrackingCode == "" || in.Status == "" {
		return Update{}, ErrMalformed.Withf("steadfast: tracking_code and status are required")
	}
	return Update{TrackingID: in.TrackingCode, RawStatus: in.Status}, nil
}
