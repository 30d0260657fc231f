package cards

import "errors"

var (
	ErrCardNotFound        = errors.New("card not found")
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrDuplicateCardNumber = errors.New("card number already exists")
	ErrCardHasTransactions = errors.New("card has recorded transactions")
	ErrNotOwner            = errors.New("card belongs to another user")
	ErrInvalidPage         = errors.New("invalid page request")

	// ErrInvalidOperation is wrapped with the reason, e.g. "already active".
	ErrInvalidOperation = errors.New("invalid operation")
)
