package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the slice of catalog data the order core reads.
type Product struct {
	ID       string
	SellerID string
	Price    decimal.Decimal
	Stock    int
}

type Order struct {
	ID         string          `json:"id"`
	BuyerID    string          `json:"buyer_id"`
	SellerID   string          `json:"seller_id"`
	Status     Status          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderItem     `json:"items"`
	PaymentRef string          `json:"payment_ref,omitempty"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// LineItem is a validated cart line with the price that will be frozen into
// the order.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type ValidatedCart struct {
	SellerID string
	Items    []LineItem
}

func (c ValidatedCart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type ListFilter struct {
	BuyerID  string
	SellerID string
	Status   Status
	Limit    int
	Offset   int
}

type PaymentConfirmation struct {
	OrderID     string          `json:"order_id"`
	PaymentRef  string          `json:"payment_ref"`
	Amount      decimal.Decimal `json:"amount"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}
