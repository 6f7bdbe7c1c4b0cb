package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxie_server/core/service/search"
	"inboxie_server/pkg/response"
)

// SearchHandler exposes semantic search over processed messages.
type SearchHandler struct {
	svc *search.Service
}

func NewSearchHandler(svc *search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

func (h *SearchHandler) Register(app fiber.Router) {
	app.Post("/search/semantic", h.Semantic)
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *SearchHandler) Semantic(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	matches, err := h.svc.Search(c.Context(), userID, req.Query, req.Limit)
	if err != nil {
		return err
	}

	return response.OK(c, fiber.Map{
		"query":   req.Query,
		"matches": matches,
	})
}
