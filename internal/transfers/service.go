package transfers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/congo-pay/cardledger/internal/cards"
	"github.com/congo-pay/cardledger/internal/ledger"
	"github.com/congo-pay/cardledger/internal/logging"
	"github.com/congo-pay/cardledger/internal/metrics"
	"github.com/congo-pay/cardledger/internal/notification"
	"github.com/congo-pay/cardledger/internal/txn"
)

const tracerName = "transfers"

// Service moves funds between cards and records each transfer in the ledger.
type Service struct {
	cards    cards.Repository
	ledger   ledger.Ledger
	tx       txn.Manager
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a transfer service. notifier and logger may be nil.
func NewService(repo cards.Repository, led ledger.Ledger, tx txn.Manager, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		cards:    repo,
		ledger:   led,
		tx:       tx,
		notifier: notifier,
		logger:   logging.Component(logger, "transfers"),
		now:      time.Now,
	}
}

// TransferInput captures the data needed to move funds between cards.
type TransferInput struct {
	ActorID    string
	FromCardID string
	ToCardID   string
	Amount     decimal.Decimal
}

// Transfer debits the source card, credits the destination and appends one
// SUCCESS entry, all in one atomic unit. Rejections leave no trace.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (_ ledger.Transaction, err error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Transfer", trace.WithAttributes(
		attribute.String("from_card_id", input.FromCardID),
		attribute.String("to_card_id", input.ToCardID),
	))
	defer func() {
		label := outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, label)
		}
		span.End()
		metrics.Transfers.WithLabelValues(label).Inc()
		metrics.TransferDuration.Observe(time.Since(start).Seconds())
	}()

	if input.FromCardID == input.ToCardID {
		return ledger.Transaction{}, s.reject(input, ErrSameCardTransfer)
	}
	if !validAmount(input.Amount) {
		return ledger.Transaction{}, s.reject(input, ErrInvalidAmount)
	}

	var entry ledger.Transaction
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		from, to, err := s.lockPair(ctx, input.FromCardID, input.ToCardID)
		if err != nil {
			return err
		}

		if from.OwnerID != input.ActorID {
			return cards.ErrNotOwner
		}
		now := s.now()
		if cards.EffectiveStatus(from, now) != cards.StatusActive {
			return &SideError{Side: SideSource, CardID: from.ID, Err: ErrCardNotActive}
		}
		if cards.EffectiveStatus(to, now) != cards.StatusActive {
			return &SideError{Side: SideDestination, CardID: to.ID, Err: ErrCardNotActive}
		}
		if !validAmount(input.Amount) {
			return ErrInvalidAmount
		}
		if from.Balance.LessThan(input.Amount) {
			return ErrInsufficientFunds
		}

		stamp := now.UTC()
		from.Balance = from.Balance.Sub(input.Amount)
		from.UpdatedAt = stamp
		to.Balance = to.Balance.Add(input.Amount)
		to.UpdatedAt = stamp
		if err := s.cards.Save(ctx, from); err != nil {
			return err
		}
		if err := s.cards.Save(ctx, to); err != nil {
			return err
		}

		entry, err = s.ledger.Append(ctx, ledger.AppendInput{
			FromCardID: from.ID,
			ToCardID:   to.ID,
			Amount:     input.Amount,
			Status:     ledger.StatusSuccess,
		})
		return err
	})
	if err != nil {
		return ledger.Transaction{}, s.reject(input, err)
	}

	span.SetAttributes(attribute.String("transaction_id", entry.ID))
	s.logger.Info("transfer completed",
		slog.String("transaction_id", entry.ID),
		slog.String("from_card_id", entry.FromCardID),
		slog.String("to_card_id", entry.ToCardID),
		slog.String("amount", entry.Amount.StringFixed(2)),
	)
	notification.Publish(ctx, s.notifier, s.logger, notification.Message{
		Kind: notification.KindTransferCompleted,
		Key:  entry.ID,
		Attributes: map[string]string{
			"from_card_id": entry.FromCardID,
			"to_card_id":   entry.ToCardID,
			"amount":       entry.Amount.StringFixed(2),
			"actor_id":     input.ActorID,
		},
		OccurredAt: entry.CreatedAt,
	})
	return entry, nil
}

// lockPair locks both cards in ascending id order so concurrent transfers
// over the same pair cannot deadlock. A missing source is reported before a
// missing destination whatever the lock order.
func (s *Service) lockPair(ctx context.Context, fromID, toID string) (cards.Card, cards.Card, error) {
	ids := [2]string{fromID, toID}
	if toID < fromID {
		ids = [2]string{toID, fromID}
	}

	locked := make(map[string]cards.Card, 2)
	for _, id := range ids {
		card, err := s.cards.LockForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, cards.ErrCardNotFound) {
				continue
			}
			return cards.Card{}, cards.Card{}, err
		}
		locked[id] = card
	}

	from, ok := locked[fromID]
	if !ok {
		return cards.Card{}, cards.Card{}, &SideError{Side: SideSource, CardID: fromID, Err: cards.ErrCardNotFound}
	}
	to, ok := locked[toID]
	if !ok {
		return cards.Card{}, cards.Card{}, &SideError{Side: SideDestination, CardID: toID, Err: cards.ErrCardNotFound}
	}
	return from, to, nil
}

func (s *Service) reject(input TransferInput, err error) error {
	s.logger.Warn("transfer rejected",
		slog.String("from_card_id", input.FromCardID),
		slog.String("to_card_id", input.ToCardID),
		slog.String("reason", outcome(err)),
		slog.Any("error", err),
	)
	return err
}

// History returns the entries of a card the actor owns.
func (s *Service) History(ctx context.Context, actorID, cardID string) ([]ledger.Transaction, error) {
	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.OwnerID != actorID {
		return nil, cards.ErrNotOwner
	}
	return s.ledger.ListByCard(ctx, cardID)
}

// ListAll returns the whole ledger, oldest first.
func (s *Service) ListAll(ctx context.Context) ([]ledger.Transaction, error) {
	return s.ledger.ListAll(ctx)
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSameCardTransfer):
		return "same_card"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, cards.ErrCardNotFound):
		return "card_not_found"
	case errors.Is(err, cards.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrCardNotActive):
		return "card_not_active"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, txn.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
