package courier

import "context"

// Manual is for parcels handed to a courier outside any integration. The
// caller supplies the tracking id and reports statuses itself.
type Manual struct{}

func NewManual() Manual { return Manual{} }

func (Manual) Name() string { return "manual" }

func (Manual) CreateShipment(_ context.Context, b Booking) (Consignment, error) {
	return Consignment{TrackingID: b.TrackingID}, nil
}

func (Manual) Track(context.Context, string) (string, error) {
	return "", ErrTrackingUnsupported
}

func (Manual) ParseWebhook(payload []byte) (Update, error) {
	var u Update
	if err := decodeWebhook(payload, &u); err != nil {
		return Update{}, err
	}
	if u.TrackingID == "" || u.RawStatus == "" {
		return Update{}, ErrMalformed.Withf("tracking_id and status are required")
	}
	return u, nil
}
