package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/cardnumber"
	"github.com/congo-pay/cardledger/internal/expiry"
	"github.com/congo-pay/cardledger/internal/logging"
	"github.com/congo-pay/cardledger/internal/metrics"
	"github.com/congo-pay/cardledger/internal/notification"
	"github.com/congo-pay/cardledger/internal/txn"
)

// maxIssueAttempts bounds number regeneration after token collisions.
const maxIssueAttempts = 5

// OwnerDirectory tells whether a user exists.
type OwnerDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// HistoryCounter counts ledger entries that reference a card.
type HistoryCounter interface {
	CountByCard(ctx context.Context, cardID string) (int, error)
}

// NumberIssuer draws new card numbers.
type NumberIssuer interface {
	Issue() (cardnumber.Issued, error)
}

// Deps groups the collaborators of Service. Notifier and Logger may be nil.
type Deps struct {
	Repo     Repository
	Tx       txn.Manager
	Owners   OwnerDirectory
	History  HistoryCounter
	Issuer   NumberIssuer
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Service runs card issuance, administration and the lifecycle state machine.
type Service struct {
	repo     Repository
	tx       txn.Manager
	owners   OwnerDirectory
	history  HistoryCounter
	issuer   NumberIssuer
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a card service instance.
func NewService(d Deps) *Service {
	return &Service{
		repo:     d.Repo,
		tx:       d.Tx,
		owners:   d.Owners,
		history:  d.History,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		logger:   logging.Component(d.Logger, "cards"),
		now:      time.Now,
	}
}

// IssueInput captures data required to issue a card.
type IssueInput struct {
	OwnerID    string
	OwnerName  string
	Expiration expiry.YearMonth
	Balance    decimal.Decimal
}

// Issue creates a card for an existing user. Its status follows the
// expiration, so a card issued with a past month starts EXPIRED.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Card, error) {
	name, err := validOwnerName(input.OwnerName)
	if err != nil {
		return Card{}, err
	}
	if input.Expiration.IsZero() {
		return Card{}, invalidOperation("expiration is required")
	}
	if input.Balance.IsNegative() {
		return Card{}, invalidOperation("initial balance must not be negative")
	}
	if !input.Balance.Equal(input.Balance.Round(2)) {
		return Card{}, invalidOperation("initial balance has more than two decimals")
	}

	exists, err := s.owners.Exists(ctx, input.OwnerID)
	if err != nil {
		return Card{}, err
	}
	if !exists {
		return Card{}, ErrOwnerNotFound
	}

	now := s.now().UTC()
	card := Card{
		ID:         uuid.NewString(),
		OwnerID:    input.OwnerID,
		OwnerName:  name,
		Expiration: input.Expiration,
		Status:     DetermineStatus(input.Expiration, now),
		Balance:    input.Balance.Round(2),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var created Card
	for attempt := 1; ; attempt++ {
		issued, err := s.issuer.Issue()
		if err != nil {
			return Card{}, fmt.Errorf("generate card number: %w", err)
		}
		card.NumberToken = issued.Token
		card.Last4 = issued.Last4

		taken, err := s.repo.ExistsByNumberToken(ctx, issued.Token)
		if err != nil {
			return Card{}, err
		}
		if !taken {
			created, err = s.repo.Create(ctx, card)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrDuplicateCardNumber) {
				return Card{}, err
			}
		}
		if attempt == maxIssueAttempts {
			return Card{}, ErrDuplicateCardNumber
		}
	}

	s.logger.Info("card issued",
		slog.String("card_id", created.ID),
		slog.String("owner_id", created.OwnerID),
		slog.String("last4", created.Last4),
		slog.String("status", string(created.Status)),
	)
	s.publish(ctx, notification.KindCardIssued, created)
	return created, nil
}

// Get returns any card with its effective status.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	card, err := s.repo.Get(ctx, id)
	if err != nil {
		return Card{}, err
	}
	return s.present(card), nil
}

// GetOwned returns the card only if actorID owns it.
func (s *Service) GetOwned(ctx context.Context, actorID, id string) (Card, error) {
	card, err := s.Get(ctx, id)
	if err != nil {
		return Card{}, err
	}
	if card.OwnerID != actorID {
		return Card{}, ErrNotOwner
	}
	return card, nil
}

// ListByOwner pages through the owner's cards.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, req PageRequest) (Page[Card], error) {
	page, err := s.repo.ListByOwner(ctx, ownerID, req)
	if err != nil {
		return Page[Card]{}, err
	}
	for i := range page.Items {
		page.Items[i] = s.present(page.Items[i])
	}
	return page, nil
}

// ListAll returns every card in id order.
func (s *Service) ListAll(ctx context.Context) ([]Card, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i] = s.present(all[i])
	}
	return all, nil
}

// UpdateInput carries the administrable fields. Nil leaves a field as is; a
// blank owner name is ignored.
type UpdateInput struct {
	OwnerName  *string
	Expiration *expiry.YearMonth
}

// Update edits owner name and expiration under the card's row lock.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Card, error) {
	var name string
	if input.OwnerName != nil && strings.TrimSpace(*input.OwnerName) != "" {
		var err error
		if name, err = validOwnerName(*input.OwnerName); err != nil {
			return Card{}, err
		}
	}
	if input.Expiration != nil && input.Expiration.IsZero() {
		return Card{}, invalidOperation("expiration is required")
	}

	var updated Card
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		card, err := s.repo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if name != "" {
			card.OwnerName = name
		}
		if input.Expiration != nil {
			card = changeExpiration(card, *input.Expiration, now)
		}
		card.UpdatedAt = now
		if err := s.repo.Save(ctx, card); err != nil {
			return err
		}
		updated = card
		return nil
	})
	if input.Expiration != nil {
		metrics.CardTransitions.WithLabelValues(eventExpiration, outcome(err)).Inc()
	}
	if err != nil {
		return Card{}, err
	}

	s.logger.Info("card updated", slog.String("card_id", updated.ID), slog.String("status", string(updated.Status)))
	s.publish(ctx, notification.KindCardUpdated, updated)
	return s.present(updated), nil
}

// Block moves an ACTIVE card to BLOCKED.
func (s *Service) Block(ctx context.Context, id string) (Card, error) {
	return s.transition(ctx, id, eventBlock, block, notification.KindCardBlocked)
}

// Activate moves a BLOCKED, unexpired card back to ACTIVE.
func (s *Service) Activate(ctx context.Context, id string) (Card, error) {
	return s.transition(ctx, id, eventActivate, activate, notification.KindCardActivated)
}

func (s *Service) transition(ctx context.Context, id, event string, apply func(Card, time.Time) (Card, error), kind string) (Card, error) {
	var updated Card
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		card, err := s.repo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		next, err := apply(card, now)
		if err != nil {
			return err
		}
		next.UpdatedAt = now
		if err := s.repo.Save(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	metrics.CardTransitions.WithLabelValues(event, outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrInvalidOperation) {
			s.logger.Warn("card transition rejected", slog.String("card_id", id), slog.String("event", event), slog.Any("error", err))
		}
		return Card{}, err
	}

	s.logger.Info("card transition", slog.String("card_id", id), slog.String("event", event), slog.String("status", string(updated.Status)))
	s.publish(ctx, kind, updated)
	return updated, nil
}

// RequestBlock records an owner's request to block their card. The card
// itself is left unchanged until an administrator acts on it.
func (s *Service) RequestBlock(ctx context.Context, actorID, id string) (Card, error) {
	card, err := s.GetOwned(ctx, actorID, id)
	if err != nil {
		return Card{}, err
	}
	switch card.Status {
	case StatusBlocked:
		return Card{}, invalidOperation("already blocked")
	case StatusExpired:
		return Card{}, invalidOperation("card expired")
	}

	s.logger.Info("card block requested", slog.String("card_id", card.ID), slog.String("owner_id", actorID))
	s.publish(ctx, notification.KindCardBlockRequested, card)
	return card, nil
}

// Delete removes a card that no ledger entry references.
func (s *Service) Delete(ctx context.Context, id string) error {
	var deleted Card
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		card, err := s.repo.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		count, err := s.history.CountByCard(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrCardHasTransactions
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		deleted = card
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCardHasTransactions) {
			s.logger.Warn("card delete rejected", slog.String("card_id", id), slog.Any("error", err))
		}
		return err
	}

	s.logger.Info("card deleted", slog.String("card_id", id))
	s.publish(ctx, notification.KindCardDeleted, deleted)
	return nil
}

func (s *Service) present(card Card) Card {
	card.Status = EffectiveStatus(card, s.now())
	return card
}

func (s *Service) publish(ctx context.Context, kind string, card Card) {
	notification.Publish(ctx, s.notifier, s.logger, notification.Message{
		Kind: kind,
		Key:  card.ID,
		Attributes: map[string]string{
			"owner_id": card.OwnerID,
			"last4":    card.Last4,
			"status":   string(card.Status),
		},
	})
}

func validOwnerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidOperation("owner name is required")
	}
	if len([]rune(name)) > MaxOwnerNameLength {
		return "", invalidOperation(fmt.Sprintf("owner name exceeds %d characters", MaxOwnerNameLength))
	}
	return name, nil
}

func outcome(err error) string {
	if err != nil {
		return "rejected"
	}
	return "success"
}
