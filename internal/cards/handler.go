package cards

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/expiry"
	"github.com/congo-pay/cardledger/internal/middleware"
)

// Handler exposes card HTTP endpoints. Domain errors are returned as is and
// mapped to statuses by the server's error handler.
type Handler struct {
	service *Service
}

// NewHandler builds a card HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	OwnerID    string           `json:"owner_id"`
	OwnerName  string           `json:"owner_name"`
	Expiration expiry.YearMonth `json:"expiration"`
	Balance    decimal.Decimal  `json:"balance"`
}

type updateRequest struct {
	OwnerName  *string           `json:"owner_name"`
	Expiration *expiry.YearMonth `json:"expiration"`
}

type cardResponse struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	OwnerID    string    `json:"owner_id"`
	OwnerName  string    `json:"owner_name"`
	Expiration string    `json:"expiration"`
	Status     string    `json:"status"`
	Balance    string    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
}

type pageResponse struct {
	Items         []cardResponse `json:"items"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int            `json:"total_elements"`
	TotalPages    int            `json:"total_pages"`
}

func toResponse(c Card) cardResponse {
	return cardResponse{
		ID:         c.ID,
		Number:     c.MaskedNumber(),
		OwnerID:    c.OwnerID,
		OwnerName:  c.OwnerName,
		Expiration: c.Expiration.String(),
		Status:     string(c.Status),
		Balance:    c.Balance.StringFixed(2),
		CreatedAt:  c.CreatedAt,
	}
}

func toResponses(cards []Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, toResponse(c))
	}
	return out
}

// ListMine returns a page of the caller's cards.
func (h *Handler) ListMine(c *fiber.Ctx) error {
	page, err := h.service.ListByOwner(c.UserContext(), middleware.UserID(c), PageRequest{
		Page: c.QueryInt("page", 0),
		Size: c.QueryInt("size", defaultPageSize),
		Sort: c.Query("sort"),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(pageResponse{
		Items:         toResponses(page.Items),
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.Total,
		TotalPages:    page.TotalPages(),
	})
}

// GetMine returns one of the caller's cards.
func (h *Handler) GetMine(c *fiber.Ctx) error {
	card, err := h.service.GetOwned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

// BalanceMine returns the balance of one of the caller's cards.
func (h *Handler) BalanceMine(c *fiber.Ctx) error {
	card, err := h.service.GetOwned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"card_id":   card.ID,
		"balance":   card.Balance.StringFixed(2),
		"timestamp": time.Now().UTC(),
	})
}

// RequestBlock files the caller's block request for an administrator.
func (h *Handler) RequestBlock(c *fiber.Ctx) error {
	card, err := h.service.RequestBlock(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"card_id": card.ID,
		"message": "block request submitted",
	})
}

// Create issues a card.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, err := h.service.Issue(c.UserContext(), IssueInput{
		OwnerID:    req.OwnerID,
		OwnerName:  req.OwnerName,
		Expiration: req.Expiration,
		Balance:    req.Balance,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(card))
}

// List returns every card.
func (h *Handler) List(c *fiber.Ctx) error {
	all, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponses(all))
}

// Get returns any card.
func (h *Handler) Get(c *fiber.Ctx) error {
	card, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

// Update edits owner name and expiration.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, err := h.service.Update(c.UserContext(), c.Params("id"), UpdateInput{
		OwnerName:  req.OwnerName,
		Expiration: req.Expiration,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

// Delete removes a card without history.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Block blocks a card.
func (h *Handler) Block(c *fiber.Ctx) error {
	card, err := h.service.Block(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}

// Activate unblocks a card.
func (h *Handler) Activate(c *fiber.Ctx) error {
	card, err := h.service.Activate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(card))
}
