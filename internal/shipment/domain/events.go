package domain

const AggregateType = "shipment"

const (
	EventShipmentCreated = "ShipmentCreated"
	EventShipmentUpdated = "ShipmentUpdated"
)

type ShipmentCreated struct {
	ShipmentID  string `json:"shipment_id"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Courier     string `json:"courier"`
	TrackingID  string `json:"tracking_id"`
}

type ShipmentUpdated struct {
	ShipmentID string `json:"shipment_id"`
	OrderID    string `json:"order_id"`
	Courier    string `json:"courier"`
	TrackingID string `json:"tracking_id"`
	From       Status `json:"from"`
	To         Status `json:"to"`
	RawStatus  string `json:"raw_status,omitempty"`
}
