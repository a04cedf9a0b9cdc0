package payments

import (
	"context"
	"errors"
	"fmt"

	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Confirmer is the slice of orders.Service the consumer drives.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, p orders.PaymentConfirmation) (orders.Order, error)
}

// Deduper claims event ids. redisx.Dedup is the production implementation.
type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Outcomes interface {
	PaymentHandled(outcome string)
}

type Service struct {
	Orders  Confirmer
	Dedup   Deduper  // optional
	Metrics Outcomes // optional
	Log     zerolog.Logger
}

// HandlePaymentConfirmed is installed as the payments consumer handler.
// Returning nil commits the offset; only transient failures are returned so
// the consumer retries them.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.Decode[orders.Envelope](m.Value)
	if err != nil {
		s.done("malformed")
		s.Log.Error().Err(err).Int64("offset", m.Offset).Msg("undecodable payment event")
		return nil
	}
	if env.EventType != orders.EventPaymentConfirmed {
		s.done("ignored")
		return nil
	}

	if s.Dedup != nil && env.EventID != "" {
		first, err := s.Dedup.FirstSeen(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", env.EventID, err)
		}
		if !first {
			s.done("duplicate")
			return nil
		}
	}

	p, err := kafkax.Decode[orders.PaymentConfirmedPayload](env.Payload)
	if err != nil {
		s.done("malformed")
		s.Log.Error().Err(err).Str("event_id", env.EventID).Msg("undecodable payment payload")
		return nil
	}

	o, err := s.Orders.ConfirmPayment(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrInvalidInput), errors.Is(err, orders.ErrNotFound):
		// retrying cannot fix these
		s.done("rejected")
		s.Log.Warn().Err(err).Str("event_id", env.EventID).Str("order_id", p.OrderID).Msg("payment confirmation rejected")
		return nil
	default:
		s.forget(ctx, env.EventID)
		s.done("failed")
		return err
	}

	s.done("confirmed")
	s.Log.Info().
		Str("event_id", env.EventID).
		Str("order_id", o.ID).
		Str("payment_ref", o.PaymentRef).
		Msg("payment confirmed")
	return nil
}

func (s *Service) forget(ctx context.Context, id string) {
	if s.Dedup == nil || id == "" {
		return
	}
	if err := s.Dedup.Forget(ctx, id); err != nil {
		s.Log.Warn().Err(err).Str("event_id", id).Msg("release dedup claim")
	}
}

func (s *Service) done(outcome string) {
	if s.Metrics != nil {
		s.Metrics.PaymentHandled(outcome)
	}
}
