package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentConfirmed   = "PaymentConfirmed"
)

// Envelope v1 wraps every event on the order topics.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID  string          `json:"order_id"`
	BuyerID  string          `json:"buyer_id"`
	SellerID string          `json:"seller_id"`
	Items    []ItemPrice     `json:"items"`
	Total    decimal.Decimal `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID   string `json:"order_id"`
	From      Status `json:"from"`
	To        Status `json:"to"`
	ActorID   string `json:"actor_id"`
	ActorRole Role   `json:"actor_role"`
	Restocked bool   `json:"restocked"`
}

type PaymentConfirmedPayload = PaymentConfirmation

func createdPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return OrderCreatedPayload{OrderID: o.ID, BuyerID: o.BuyerID, SellerID: o.SellerID, Items: items, Total: o.Total}
}
