package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardledger/internal/auth"
	"github.com/congo-pay/cardledger/internal/cards"
	"github.com/congo-pay/cardledger/internal/identity"
	"github.com/congo-pay/cardledger/internal/transfers"
	"github.com/congo-pay/cardledger/internal/txn"
)

var statusByError = []struct {
	err    error
	status int
}{
	{txn.ErrUnavailable, http.StatusServiceUnavailable},
	{cards.ErrCardNotFound, http.StatusNotFound},
	{cards.ErrOwnerNotFound, http.StatusNotFound},
	{identity.ErrUserNotFound, http.StatusNotFound},
	{cards.ErrDuplicateCardNumber, http.StatusConflict},
	{cards.ErrCardHasTransactions, http.StatusConflict},
	{identity.ErrUserExists, http.StatusConflict},
	{cards.ErrInvalidOperation, http.StatusBadRequest},
	{cards.ErrInvalidPage, http.StatusBadRequest},
	{identity.ErrInvalidUser, http.StatusBadRequest},
	{cards.ErrNotOwner, http.StatusForbidden},
	{transfers.ErrSameCardTransfer, http.StatusBadRequest},
	{transfers.ErrInvalidAmount, http.StatusBadRequest},
	{transfers.ErrCardNotActive, http.StatusUnprocessableEntity},
	{transfers.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
}

// StatusFor maps a handler error to its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every error as {"error": "..."}. Internal failures
// are logged and their details kept off the wire.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			if logger != nil {
				logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
			}
			msg = "internal server error"
		}
		if status == http.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
