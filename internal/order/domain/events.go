package domain

import (
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
)

const AggregateType = "order"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID       string `json:"order_id"`
	Number        string `json:"number"`
	UserID        int64  `json:"user_id"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	CouponCode    string `json:"coupon_code,omitempty"`
	Items         []Item `json:"items"`
}

type OrderCancelled struct {
	OrderID  string           `json:"order_id"`
	Number   string           `json:"number"`
	Reason   string           `json:"reason,omitempty"`
	Released []invdomain.Line `json:"released"`
}

type OrderStatusChanged struct {
	OrderID       string        `json:"order_id"`
	Number        string        `json:"number"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ReturnStatus  ReturnStatus  `json:"return_status,omitempty"`
}

func Placed(o *Order) OrderPlaced {
	return OrderPlaced{
		OrderID:       o.ID,
		Number:        o.Number,
		UserID:        o.UserID,
		TotalCents:    o.TotalCents,
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		CouponCode:    o.CouponCode,
		Items:         o.Items,
	}
}

func StatusChanged(o *Order, from Status) OrderStatusChanged {
	return OrderStatusChanged{
		OrderID:       o.ID,
		Number:        o.Number,
		From:          from,
		To:            o.Status,
		PaymentStatus: o.PaymentStatus,
		ReturnStatus:  o.ReturnStatus,
	}
}

// StockLines lists the stock the order reserved at placement.
func (o *Order) StockLines() []invdomain.Line {
	lines := make([]invdomain.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, invdomain.Line{
			Key:      invdomain.Key{ProductID: it.ProductID, VariantID: it.VariantID},
			Quantity: it.Quantity,
		})
	}
	return lines
}
