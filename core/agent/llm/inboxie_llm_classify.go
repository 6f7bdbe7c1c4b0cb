package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"inboxie_server/core/domain"
)

const classifySystemPrompt = `You are an email classification AI. Analyze the email and respond with JSON only.

Categories (pick ONE):
- work: Work-related emails (meetings, projects, colleagues, clients)
- personal: Personal emails from friends/family
- newsletter: Subscribed newsletters and digests
- shopping: Order confirmations, shipping, delivery, receipts
- support: Customer support threads, help desk responses
- other: Doesn't fit other categories

Respond with this exact JSON format:
{"category": "category_name"}`

const assessSystemPrompt = `You are an email triage AI. Decide whether the email needs a reply from the recipient and respond with JSON only.

Rules:
- Automated mail, receipts, notifications, and newsletters never need a reply.
- A direct question, request, or invitation addressed to the recipient needs a reply.
- Urgency is "high" only for time-sensitive requests, "medium" for ordinary requests, "low" otherwise.

Respond with this exact JSON format:
{"needs_reply": true|false, "reason": "one short sentence", "urgency": "low|medium|high"}`

type classifyResponse struct {
	Category string `json:"category"`
}

type assessResponse struct {
	NeedsReply bool   `json:"needs_reply"`
	Reason     string `json:"reason"`
	Urgency    string `json:"urgency"`
}

// Classify assigns a category to the message. Model output outside the
// category set is coerced to other; only transport failures return an error.
func (c *Client) Classify(ctx context.Context, msg *domain.Message) (domain.Category, error) {
	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\nBody:\n%s",
		msg.From, msg.Subject, truncateBody(bodyOrSnippet(msg), 2000))

	resp, err := c.CompleteJSON(ctx, classifySystemPrompt, userPrompt)
	if err != nil {
		return domain.CategoryOther, err
	}

	var result classifyResponse
	if err := json.Unmarshal([]byte(trimFence(resp)), &result); err != nil {
		// Some models answer with the bare category word despite the format
		// instruction; ParseCategory absorbs that too.
		return domain.ParseCategory(resp), nil
	}

	return domain.ParseCategory(result.Category), nil
}

// AssessReply judges whether the message needs a human reply. Malformed model
// output degrades to a negative assessment instead of failing the message.
func (c *Client) AssessReply(ctx context.Context, msg *domain.Message) (domain.ReplyAssessment, error) {
	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\nReceived: %s\n\nBody:\n%s",
		msg.From, msg.Subject, msg.ReceivedAt.Format("2006-01-02 15:04"),
		truncateBody(bodyOrSnippet(msg), 2000))

	resp, err := c.CompleteJSON(ctx, assessSystemPrompt, userPrompt)
	if err != nil {
		return domain.NoReplyAssessment("analysis error"), err
	}

	var result assessResponse
	if err := json.Unmarshal([]byte(trimFence(resp)), &result); err != nil {
		return domain.NoReplyAssessment("analysis error"), nil
	}

	reason := strings.TrimSpace(result.Reason)
	if reason == "" {
		if result.NeedsReply {
			reason = "reply expected"
		} else {
			reason = "no reply needed"
		}
	}

	return domain.ReplyAssessment{
		NeedsReply: result.NeedsReply,
		Reason:     reason,
		Urgency:    domain.ParseUrgency(result.Urgency),
	}, nil
}

func bodyOrSnippet(msg *domain.Message) string {
	if msg.Body != "" {
		return msg.Body
	}
	return msg.Snippet
}

func trimFence(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
