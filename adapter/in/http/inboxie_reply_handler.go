package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxie_server/core/service/process"
	"inboxie_server/core/service/reply"
	"inboxie_server/pkg/response"
)

// ReplyHandler exposes reply drafting and tone analysis.
type ReplyHandler struct {
	replies *reply.Service
	tokens  *process.Service
}

func NewReplyHandler(replies *reply.Service, tokens *process.Service) *ReplyHandler {
	return &ReplyHandler{replies: replies, tokens: tokens}
}

func (h *ReplyHandler) Register(app fiber.Router) {
	app.Post("/replies/draft", h.Draft)
	app.Post("/tone/analyze", h.AnalyzeTone)
}

type draftRequest struct {
	MessageID string `json:"message_id"`
}

// Draft generates a reply draft for a processed message.
func (h *ReplyHandler) Draft(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.MessageID == "" {
		return response.BadRequest(c, "message_id is required")
	}

	token, err := h.tokens.ProviderToken(c.Context(), userID)
	if err != nil {
		return err
	}

	draft, err := h.replies.DraftReply(c.Context(), userID, token, req.MessageID)
	if err != nil {
		return err
	}
	return response.OK(c, draft)
}

// AnalyzeTone rebuilds the user's writing-style profile from sent mail.
func (h *ReplyHandler) AnalyzeTone(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	token, err := h.tokens.ProviderToken(c.Context(), userID)
	if err != nil {
		return err
	}

	profile, err := h.replies.AnalyzeTone(c.Context(), userID, token)
	if err != nil {
		return err
	}
	return response.OK(c, profile)
}
