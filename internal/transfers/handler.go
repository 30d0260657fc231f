package transfers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/ledger"
	"github.com/congo-pay/cardledger/internal/middleware"
)

// Handler exposes transfer and history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromCardID string          `json:"from_card_id"`
	ToCardID   string          `json:"to_card_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	ID         string    `json:"id"`
	FromCardID string    `json:"from_card_id"`
	ToCardID   string    `json:"to_card_id"`
	Amount     string    `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		FromCardID: t.FromCardID,
		ToCardID:   t.ToCardID,
		Amount:     t.Amount.StringFixed(2),
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
	}
}

func toResponses(entries []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toResponse(e))
	}
	return out
}

// Transfer moves funds from one of the caller's cards.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.service.Transfer(c.UserContext(), TransferInput{
		ActorID:    middleware.UserID(c),
		FromCardID: req.FromCardID,
		ToCardID:   req.ToCardID,
		Amount:     req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(entry))
}

// History lists the entries of one of the caller's cards.
func (h *Handler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponses(entries))
}

// List returns the whole ledger.
func (h *Handler) List(c *fiber.Ctx) error {
	entries, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponses(entries))
}
