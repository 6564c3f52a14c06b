package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mishimanto/ecommerce/pkg/apperr"
)

var (
	ErrNotFound        = apperr.NotFound("cart_not_found", "cart not found")
	ErrEmptyCart       = apperr.Validation("empty_cart", "cart is empty")
	ErrItemNotFound    = apperr.NotFound("cart_item_not_found", "cart item not found")
	ErrInvalidQuantity = apperr.Validation("invalid_quantity", "quantity must be at least 1")
	ErrInvalidOwner    = apperr.Validation("invalid_cart_owner", "cart needs a user or a session token")
)

// Owner identifies a cart: a signed-in user or an anonymous session.
// Exactly one of the fields is set.
type Owner struct {
	UserID       int64  `json:"user_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

func (o Owner) Valid() bool {
	return (o.UserID != 0) != (o.SessionToken != "")
}

func (o Owner) String() string {
	if o.UserID != 0 {
		return fmt.Sprintf("user:%d", o.UserID)
	}
	return "session:" + o.SessionToken
}

type Item struct {
	ID             string    `json:"id"`
	ProductID      int64     `json:"product_id"`
	VariantID      int64     `json:"variant_id,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	AddedAt        time.Time `json:"added_at"`
}

func (i Item) LineCents() int64 { return i.UnitPriceCents * int64(i.Quantity) }

type Cart struct {
	ID         string    `json:"id"`
	Owner      Owner     `json:"owner"`
	Items      []Item    `json:"items"`
	CouponCode string    `json:"coupon_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func New(owner Owner, now time.Time) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	return &Cart{ID: uuid.NewString(), Owner: owner, CreatedAt: now, UpdatedAt: now}, nil
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) Find(productID, variantID int64) (int, bool) {
	for i, it := range c.Items {
		if it.ProductID == productID && it.VariantID == variantID {
			return i, true
		}
	}
	return -1, false
}

func (c *Cart) item(itemID string) (int, error) {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i, nil
		}
	}
	return -1, ErrItemNotFound
}

func (c *Cart) Item(itemID string) (Item, error) {
	i, err := c.item(itemID)
	if err != nil {
		return Item{}, err
	}
	return c.Items[i], nil
}

// Add puts qty of a product into the cart. An existing line for the same
// product and variant grows instead of being duplicated, and takes the
// newer price snapshot.
func (c *Cart) Add(productID, variantID int64, qty int, unitPriceCents int64, now time.Time) Item {
	if i, ok := c.Find(productID, variantID); ok {
		c.Items[i].Quantity += qty
		c.Items[i].UnitPriceCents = unitPriceCents
		c.UpdatedAt = now
		return c.Items[i]
	}
	it := Item{
		ID:             uuid.NewString(),
		ProductID:      productID,
		VariantID:      variantID,
		Quantity:       qty,
		UnitPriceCents: unitPriceCents,
		AddedAt:        now,
	}
	c.Items = append(c.Items, it)
	c.UpdatedAt = now
	return it
}

func (c *Cart) Update(itemID string, qty int, unitPriceCents int64, now time.Time) (Item, error) {
	if qty < 1 {
		return Item{}, ErrInvalidQuantity
	}
	i, err := c.item(itemID)
	if err != nil {
		return Item{}, err
	}
	c.Items[i].Quantity = qty
	c.Items[i].UnitPriceCents = unitPriceCents
	c.UpdatedAt = now
	return c.Items[i], nil
}

func (c *Cart) Remove(itemID string, now time.Time) error {
	i, err := c.item(itemID)
	if err != nil {
		return err
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return nil
}

func (c *Cart) Clear(now time.Time) {
	c.Items = nil
	c.CouponCode = ""
	c.UpdatedAt = now
}

// Merge folds other into c. Quantities of shared lines add up and the
// coupon carries over only if c has none.
func (c *Cart) Merge(other *Cart, now time.Time) {
	for _, it := range other.Items {
		if i, ok := c.Find(it.ProductID, it.VariantID); ok {
			c.Items[i].Quantity += it.Quantity
			continue
		}
		it.ID = uuid.NewString()
		c.Items = append(c.Items, it)
	}
	if c.CouponCode == "" {
		c.CouponCode = other.CouponCode
	}
	c.UpdatedAt = now
}

func (c *Cart) SubtotalCents() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.LineCents()
	}
	return total
}
