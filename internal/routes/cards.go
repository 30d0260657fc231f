package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardledger/internal/cards"
	"github.com/congo-pay/cardledger/internal/transfers"
)

// RegisterUserCardRoutes wires the card endpoints of the authenticated owner.
func RegisterUserCardRoutes(r fiber.Router, h *cards.Handler, th *transfers.Handler) {
	r.Get("/cards", h.ListMine)
	r.Get("/cards/:id", h.GetMine)
	r.Get("/cards/:id/balance", h.BalanceMine)
	r.Post("/cards/:id/block", h.RequestBlock)
	r.Get("/cards/:id/transactions", th.History)
}
