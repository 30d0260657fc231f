package cards

import (
	"fmt"
	"time"

	"github.com/congo-pay/cardledger/internal/expiry"
)

// Lifecycle events, also used as metric labels.
const (
	eventBlock      = "block"
	eventActivate   = "activate"
	eventExpiration = "expiration"
)

// DetermineStatus is the status a card with expiration exp gets at now.
func DetermineStatus(exp expiry.YearMonth, now time.Time) Status {
	if exp.IsExpired(now) {
		return StatusExpired
	}
	return StatusActive
}

// EffectiveStatus is the status the card actually has at now. A stored
// ACTIVE or BLOCKED card past its expiration month reads as EXPIRED.
func EffectiveStatus(card Card, now time.Time) Status {
	if card.Status != StatusExpired && card.Expiration.IsExpired(now) {
		return StatusExpired
	}
	return card.Status
}

func invalidOperation(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, reason)
}

func block(card Card, now time.Time) (Card, error) {
	switch EffectiveStatus(card, now) {
	case StatusActive:
		card.Status = StatusBlocked
		return card, nil
	case StatusBlocked:
		return card, invalidOperation("already blocked")
	default:
		return card, invalidOperation("card expired")
	}
}

func activate(card Card, now time.Time) (Card, error) {
	switch EffectiveStatus(card, now) {
	case StatusBlocked:
		card.Status = StatusActive
		return card, nil
	case StatusActive:
		return card, invalidOperation("already active")
	default:
		return card, invalidOperation("card expired")
	}
}

// changeExpiration writes a new expiration and re-derives the status with
// the issuance rule, whatever the card's current status.
func changeExpiration(card Card, exp expiry.YearMonth, now time.Time) Card {
	card.Expiration = exp
	card.Status = DetermineStatus(exp, now)
	return card
}
