package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Store is the persistence contract the service drives. Repo is the Postgres
// implementation.
type Store interface {
	CreateOrderTx(ctx context.Context, buyerID string, cart ValidatedCart) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to Status, restock bool) (Order, error)
	MarkPaid(ctx context.Context, p PaymentConfirmation) (Order, error)
}

// Cache holds order snapshots only. Access decisions are never cached.
// Set overwrites and follows a committed change. Fill stores a snapshot read
// from the Store only when no entry exists, so a slow read never replaces a
// newer write.
type Cache interface {
	Get(ctx context.Context, orderID string) (Order, bool, error)
	Set(ctx context.Context, o Order) error
	Fill(ctx context.Context, o Order) error
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Recorder interface {
	OrderCreated()
	OrderRejected(reason string)
	StatusChanged(from, to string)
}

type Service struct {
	Catalog     CatalogReader
	Store       Store
	Cache       Cache     // optional
	Events      Publisher // optional
	Metrics     Recorder  // optional
	Log         zerolog.Logger
	TxTimeout   time.Duration
	ServiceName string

	gate Gate
}

func (s *Service) CreateOrder(ctx context.Context, buyerID string, items []ItemInput) (Order, error) {
	v := Validator{Catalog: s.Catalog}
	cart, err := v.Validate(ctx, buyerID, items)
	if err != nil {
		s.rejected(buyerID, err)
		return Order{}, err
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()
	o, err := s.Store.CreateOrderTx(txCtx, buyerID, cart)
	if err != nil {
		err = deadline(err)
		s.rejected(buyerID, err)
		return Order{}, err
	}

	if s.Metrics != nil {
		s.Metrics.OrderCreated()
	}
	s.cache(ctx, o)
	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, createdPayload(o))
	s.Log.Info().
		Str("order_id", o.ID).
		Str("buyer_id", o.BuyerID).
		Str("seller_id", o.SellerID).
		Str("total", o.Total.StringFixed(2)).
		Int("items", len(o.Items)).
		Msg("order created")
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.gate.CanRead(actor, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders scopes the filter by role: buyers see their purchases, sellers
// the orders placed against them, admins everything the filter allows.
func (s *Service) ListOrders(ctx context.Context, actor Actor, f ListFilter) ([]Order, error) {
	switch actor.Role {
	case RoleAdmin:
	case RoleBuyer:
		if actor.ID == "" {
			return nil, fmt.Errorf("%w: missing actor id", ErrForbidden)
		}
		f.BuyerID, f.SellerID = actor.ID, ""
	case RoleSeller:
		if actor.ID == "" {
			return nil, fmt.Errorf("%w: missing actor id", ErrForbidden)
		}
		f.BuyerID, f.SellerID = "", actor.ID
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidInput)
	}
	return s.Store.ListOrders(ctx, f)
}

func (s *Service) ChangeOrderStatus(ctx context.Context, actor Actor, orderID string, target Status) (Order, error) {
	// transitions always start from the stored row, never from a cached copy
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.gate.CanRead(actor, o); err != nil {
		return Order{}, err
	}
	if err := s.gate.CanTransition(actor, o, target); err != nil {
		s.Log.Warn().
			Str("order_id", o.ID).
			Str("actor_id", actor.ID).
			Str("role", string(actor.Role)).
			Str("from", string(o.Status)).
			Str("to", string(target)).
			Err(err).
			Msg("status change rejected")
		return Order{}, err
	}

	from := o.Status
	restock := restocksOnTransition(from, target)

	txCtx, cancel := s.txContext(ctx)
	defer cancel()
	updated, err := s.Store.UpdateStatus(txCtx, o.ID, from, target, restock)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			te.Role = actor.Role
		}
		return Order{}, deadline(err)
	}

	if s.Metrics != nil {
		s.Metrics.StatusChanged(string(from), string(target))
	}
	s.cache(ctx, updated)
	s.publish(TopicOrderStatusChanged, EventOrderStatusChanged, updated.ID, OrderStatusChangedPayload{
		OrderID:   updated.ID,
		From:      from,
		To:        target,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Restocked: restock,
	})
	s.Log.Info().
		Str("order_id", updated.ID).
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Str("from", string(from)).
		Str("to", string(target)).
		Bool("restocked", restock).
		Msg("order status changed")
	return updated, nil
}

// ConfirmPayment records an asynchronous payment signal. It never touches the
// order status.
func (s *Service) ConfirmPayment(ctx context.Context, p PaymentConfirmation) (Order, error) {
	if strings.TrimSpace(p.OrderID) == "" || strings.TrimSpace(p.PaymentRef) == "" {
		return Order{}, fmt.Errorf("%w: order id and payment ref are required", ErrInvalidInput)
	}
	o, err := s.Store.MarkPaid(ctx, p)
	if err != nil {
		return Order{}, err
	}
	if !p.Amount.IsZero() && !p.Amount.Equal(o.Total) {
		s.Log.Warn().
			Str("order_id", o.ID).
			Str("payment_ref", p.PaymentRef).
			Str("paid", p.Amount.StringFixed(2)).
			Str("total", o.Total.StringFixed(2)).
			Msg("payment amount does not match order total")
	}
	s.cache(ctx, o)
	return o, nil
}

func (s *Service) load(ctx context.Context, orderID string) (Order, error) {
	if s.Cache != nil {
		o, ok, err := s.Cache.Get(ctx, orderID)
		if err != nil {
			s.Log.Debug().Err(err).Str("order_id", orderID).Msg("order cache read failed")
		}
		if ok {
			return o, nil
		}
	}
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.fill(ctx, o)
	return o, nil
}

func (s *Service) fill(ctx context.Context, o Order) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Fill(ctx, o); err != nil {
		s.Log.Debug().Err(err).Str("order_id", o.ID).Msg("order cache fill failed")
	}
}

func (s *Service) cache(ctx context.Context, o Order) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, o); err != nil {
		s.Log.Debug().Err(err).Str("order_id", o.ID).Msg("order cache write failed")
	}
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.Log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		s.Log.Error().Err(err).Str("event_type", eventType).Msg("marshal event envelope")
		return
	}
	s.Events.Publish(topic, PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) rejected(buyerID string, err error) {
	reason := FailureReason(err)
	if s.Metrics != nil {
		s.Metrics.OrderRejected(reason)
	}
	ev := s.Log.Info()
	if reason == "transaction_failed" || reason == "other" {
		ev = s.Log.Error()
	}
	ev.Str("buyer_id", buyerID).Str("reason", reason).Err(err).Msg("order rejected")
}

func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.TxTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.TxTimeout)
}

func deadline(err error) error {
	if errors.Is(err, ErrTransactionFailed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return txFailed("deadline", err)
	}
	return err
}

// FailureReason maps an error onto a short label used in metrics and logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrMixedSellerCart):
		return "mixed_seller_cart"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransactionFailed):
		return "transaction_failed"
	}
	return "other"
}
