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

type RedXConfig struct {
	AccessToken string
	BaseURL     string
}

type RedX struct {
	cfg    RedXConfig
	client *httpclient.Client
}

func NewRedX(cfg RedXConfig, client *httpclient.Client) *RedX {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapi.redx.com.bd/v1.0.0-beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RedX{cfg: cfg, client: client}
}

func (r *RedX) Name() string { return "redx" }

func (r *RedX) headers() http.Header {
	h := http.Header{}
	h.Set("API-ACCESS-TOKEN", "Bearer "+r.cfg.AccessToken)
	return h
}

func (r *RedX) CreateShipment(ctx context.Context, b Booking) (Consignment, error) {
	body, err := json.Marshal(map[string]any{
		"customer_name":          b.Recipient.Name,
		"customer_phone":         b.Recipient.Phone,
		"customer_address":       strings.TrimSpace(b.Recipient.Address + ", " + b.Recipient.City),
		"merchant_invoice_id":    b.OrderNumber,
		"cash_collection_amount": decimal.New(b.CollectCents, -2).StringFixed(2),
		"parcel_weight":          500,
		"instruction":            b.Note,
		"value":                  b.ItemCount,
	})
	if err != nil {
		return Consignment{}, err
	}
	var out struct {
		TrackingID string `json:"tracking_id"`
	}
	raw, err := call(ctx, r.client, "redx", httpclient.Request{
		Method: http.MethodPost, URL: r.cfg.BaseURL + "/parcel", Header: r.headers(), Body: body,
	}, &out)
	if err != nil {
		return Consignment{Raw: raw}, err
	}
	if out.TrackingID == "" {
		return Consignment{Raw: raw}, ErrMalformed.Withf("redx: missing tracking id")
	}
	return Consignment{TrackingID: out.TrackingID, Raw: raw}, nil
}

func (r *RedX) Track(ctx context.Context, trackingID string) (string, error) {
	var out struct {
		Parcel struct {
			Status string `json:"status"`
		} `json:"parcel"`
	}
	if _, err := call(ctx, r.client, "redx", httpclient.Request{
		Method:    http.MethodGet,
		URL:       r.cfg.BaseURL + "/parcel/info/" + url.PathEscape(trackingID),
		Header:    r.headers(),
		Retryable: true,
	}, &out); err != nil {
		return "", err
	}
	return out.Parcel.Status, nil
}

func (r *RedX) ParseWebhook(payload []byte) (Update, error) {
	var in struct {
		TrackingNumber string `json:"tracking_number"`
		TrackingCode   string `json:"tracking_code"`
		Status         string `json:"status"`
	}
	if err := decodeWebhook(payload, &in); err != nil {
		return Update{}, err
	}
	id := in.TrackingNumber
	if id == "" {
		id = in.TrackingCode
	}
	if id == "" || in.Status == "" {
		return Update{}, ErrMalformed.Withf("redx: tracking number and status are required")
	}
	return Update{TrackingID: id, RawStatus: in.Status}, nil
}
