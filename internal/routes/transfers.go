package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardledger/internal/transfers"
)

// RegisterTransferRoutes wires the transfer endpoint, behind idempotency
// when a cache is configured.
func RegisterTransferRoutes(r fiber.Router, h *transfers.Handler, idempotency fiber.Handler) {
	if idempotency != nil {
		r.Post("/transactions/transfer", idempotency, h.Transfer)
		return
	}
	r.Post("/transactions/transfer", h.Transfer)
}
