package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes user administration endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Roles: u.RoleNames(), CreatedAt: u.CreatedAt}
}

// Create registers a user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Create(c.UserContext(), CreateInput{Username: req.Username, Password: req.Password, Roles: req.Roles})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// List returns every user.
func (h *Handler) List(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Get returns one user.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(user))
}
