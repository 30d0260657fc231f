package transfers

import (
	"errors"
	"fmt"
)

var (
	ErrSameCardTransfer  = errors.New("source and destination card are the same")
	ErrCardNotActive     = errors.New("card is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimals")
)

// Transfer sides named by SideError.
const (
	SideSource      = "source"
	SideDestination = "destination"
)

// SideError ties a card failure to the side of the transfer it hit.
type SideError struct {
	Side   string
	CardID string
	Err    error
}

func (e *SideError) Error() string {
	return fmt.Sprintf("%s card %s: %v", e.Side, e.CardID, e.Err)
}

func (e *SideError) Unwrap() error {
	return e.Err
}
