package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxie_server/core/service/auth"
	"inboxie_server/pkg/response"
)

// OAuthHandler exposes the mailbox connect flow.
type OAuthHandler struct {
	svc *auth.Service
}

func NewOAuthHandler(svc *auth.Service) *OAuthHandler {
	return &OAuthHandler{svc: svc}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	grp := app.Group("/oauth/google")
	grp.Get("/url", h.AuthURL)
	grp.Delete("/", h.Disconnect)
}

// RegisterPublic registers the routes the provider calls back into, which
// carry no bearer token.
func (h *OAuthHandler) RegisterPublic(app fiber.Router) {
	app.Get("/oauth/google/callback", h.Callback)
}

// AuthURL returns the provider consent URL with a single-use state.
func (h *OAuthHandler) AuthURL(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	url, err := h.svc.AuthURL(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"auth_url": url})
}

// Callback completes the OAuth exchange. The provider redirects here, so the
// request carries the state instead of a bearer token.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	state := c.Query("state")
	code := c.Query("code")

	userID, err := h.svc.Callback(c.Context(), state, code)
	if err != nil {
		return err
	}

	return response.OKWithMessage(c, fiber.Map{"user_id": userID}, "mailbox connected")
}

// Disconnect removes the stored mailbox credential.
func (h *OAuthHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	if err := h.svc.Disconnect(c.Context(), userID); err != nil {
		return err
	}
	return response.OKWithMessage(c, nil, "mailbox disconnected")
}
