package domain

import "fmt"

type RefKind string

const (
	RefPaymentID        RefKind = "payment_id"
	RefOrderNumber      RefKind = "order_number"
	RefGatewayReference RefKind = "gateway_reference"
	RefTransactionID    RefKind = "transaction_id"
)

// Reference is how a gateway names a payment. Order numbers resolve to the
// order's most recent attempt for Method.
type Reference struct {
	Kind   RefKind `json:"kind"`
	Value  string  `json:"value"`
	Method Method  `json:"method"`
}

func ByID(id string) Reference { return Reference{Kind: RefPaymentID, Value: id} }

func (r Reference) String() string { return fmt.Sprintf("%s:%s=%s", r.Method, r.Kind, r.Value) }

// Matches reports whether p is named by r, ignoring order-number
// resolution, which needs the order's attempt history.
func (r Reference) Matches(p *Payment) bool {
	if r.Method != "" && r.Method != p.Method {
		return false
	}
	switch r.Kind {
	case RefPaymentID:
		return p.ID == r.Value
	case RefGatewayReference:
		return p.GatewayReference == r.Value
	case RefTransactionID:
		return p.TransactionID == r.Value
	case RefOrderNumber:
		return p.OrderNumber == r.Value
	}
	return false
}
