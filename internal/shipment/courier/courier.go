// Package courier adapts delivery companies to one interface. Each adapter
// books consignments, polls their status and parses status webhooks; the
// StatusMap turns courier wording into shipment statuses.
package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/httpclient"
)

var (
	ErrMalformed           = apperr.Validation("malformed_payload", "courier payload is malformed")
	ErrTrackingUnsupported = apperr.Conflict("tracking_unsupported", "courier has no tracking API")
	ErrNoRecipient         = apperr.NotFound("address_not_found", "shipping address not found")
)

type Recipient struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
}

// Booking is what a courier needs to collect a parcel. CollectCents is the
// cash to collect on delivery, zero for prepaid orders.
type Booking struct {
	OrderNumber  string
	Recipient    Recipient
	ItemCount    int
	CollectCents int64
	Note         string
	// TrackingID is set by the caller for couriers without a booking API.
	TrackingID string
}

type Consignment struct {
	TrackingID string
	Raw        json.RawMessage
}

// Update is one status report from a courier.
type Update struct {
	TrackingID string `json:"tracking_id"`
	RawStatus  string `json:"status"`
}

type Courier interface {
	Name() string
	CreateShipment(ctx context.Context, b Booking) (Consignment, error)
	// Track returns the courier's current status text for trackingID.
	Track(ctx context.Context, trackingID string) (string, error)
	ParseWebhook(payload []byte) (Update, error)
}

type Registry struct {
	couriers map[string]Courier
}

func NewRegistry(couriers ...Courier) *Registry {
	r := &Registry{couriers: make(map[string]Courier, len(couriers))}
	for _, c := range couriers {
		r.couriers[c.Name()] = c
	}
	return r
}

func (r *Registry) Get(name string) (Courier, bool) {
	c, ok := r.couriers[strings.ToLower(name)]
	return c, ok
}

// call sends a JSON request and decodes a 2xx answer into out.
func call(ctx context.Context, client *httpclient.Client, name string, req httpclient.Request, out any) (json.RawMessage, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", name, req.URL, err)
	}
	if !resp.OK() {
		return resp.Body, fmt.Errorf("%s %s: status %d", name, req.URL, resp.Status)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp.Body, fmt.Errorf("%s decode: %w", name, err)
		}
	}
	return resp.Body, nil
}

func decodeWebhook(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return ErrMalformed.Wrap(err)
	}
	return nil
}
