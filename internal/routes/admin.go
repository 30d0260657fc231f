package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardledger/internal/cards"
	"github.com/congo-pay/cardledger/internal/identity"
	"github.com/congo-pay/cardledger/internal/transfers"
)

// RegisterAdminRoutes wires user and card administration.
func RegisterAdminRoutes(r fiber.Router, uh *identity.Handler, ch *cards.Handler, th *transfers.Handler) {
	r.Post("/users", uh.Create)
	r.Get("/users", uh.List)
	r.Get("/users/:id", uh.Get)

	r.Post("/cards", ch.Create)
	r.Get("/cards", ch.List)
	r.Get("/cards/:id", ch.Get)
	r.Put("/cards/:id", ch.Update)
	r.Delete("/cards/:id", ch.Delete)
	r.Post("/cards/:id/block", ch.Block)
	r.Post("/cards/:id/activate", ch.Activate)

	r.Get("/transactions", th.List)
}
