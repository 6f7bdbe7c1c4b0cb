package http

import (
	"bufio"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"inboxie_server/core/port/out"
	"inboxie_server/core/service/pipeline"
	"inboxie_server/core/service/process"
	"inboxie_server/pkg/logger"
	"inboxie_server/pkg/response"
)

// ProcessHandler exposes the email pipeline over HTTP.
type ProcessHandler struct {
	svc      *process.Service
	progress out.ProgressPublisher
	log      *logger.Logger
}

func NewProcessHandler(svc *process.Service, progress out.ProgressPublisher, log *logger.Logger) *ProcessHandler {
	return &ProcessHandler{svc: svc, progress: progress, log: log}
}

func (h *ProcessHandler) Register(app fiber.Router) {
	grp := app.Group("/process")
	grp.Post("/", h.Run)
	grp.Get("/stats", h.Stats)
	grp.Get("/events", h.Events)
}

type runRequest struct {
	BatchSize  int `json:"batch_size"`
	EmailLimit int `json:"email_limit"`
}

// Run executes a pipeline run synchronously and returns the report.
func (h *ProcessHandler) Run(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var req runRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "invalid request body")
		}
	}
	if req.BatchSize < 0 || req.EmailLimit < 0 {
		return response.BadRequest(c, "batch_size and email_limit must be non-negative")
	}

	report, err := h.svc.Run(c.Context(), userID, pipeline.RunOptions{
		BatchSize:  req.BatchSize,
		EmailLimit: req.EmailLimit,
	})
	if err != nil {
		return err
	}

	return response.OK(c, report)
}

// Stats returns processing statistics for the user.
func (h *ProcessHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	stats, err := h.svc.Stats(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}

// Events streams pipeline progress to the client as Server-Sent Events.
func (h *ProcessHandler) Events(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	events, cancel := h.progress.Subscribe(userID)
	userIDStr := userID.String()

	h.log.WithField("user_id", userIDStr).Info("progress stream connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer cancel()
		defer h.log.WithField("user_id", userIDStr).Info("progress stream disconnected")

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}

				data, err := json.Marshal(event)
				if err != nil {
					h.log.WithError(err).Error("failed to serialize progress event")
					continue
				}

				w.WriteString("event: progress\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
