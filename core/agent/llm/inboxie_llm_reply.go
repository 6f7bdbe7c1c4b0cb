package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"inboxie_server/core/domain"
)

const toneSystemPrompt = `You analyze a person's writing style from their sent emails and respond with JSON only.

Respond with this exact JSON format:
{
  "formality": "casual|neutral|formal",
  "greeting": "their typical opening phrase",
  "sign_off": "their typical closing phrase",
  "traits": ["short descriptor", "short descriptor"]
}`

type toneResponse struct {
	Formality string   `json:"formality"`
	Greeting  string   `json:"greeting"`
	SignOff   string   `json:"sign_off"`
	Traits    []string `json:"traits"`
}

// GenerateReply drafts a reply to the message, matching the user's tone
// profile when one is available.
func (c *Client) GenerateReply(ctx context.Context, msg *domain.Message, tone *domain.ToneProfile) (string, error) {
	styleContext := ""
	if tone != nil {
		styleContext = fmt.Sprintf(`The sender's writing style:
- Formality: %s
- Typical greeting: %s
- Typical sign-off: %s
- Traits: %s`,
			tone.Formality, tone.Greeting, tone.SignOff, strings.Join(tone.Traits, ", "))
	}

	prompt := fmt.Sprintf(`Generate a reply to this email.

Original email:
From: %s
Subject: %s
Body:
%s

%s

Write the reply as the recipient would, matching their style if provided.
Only output the reply body, no subject line.`,
		msg.From, msg.Subject, truncateBody(bodyOrSnippet(msg), 3000), styleContext)

	return c.Complete(ctx, prompt)
}

// AnalyzeTone derives a tone profile from sample sent messages.
func (c *Client) AnalyzeTone(ctx context.Context, samples []*domain.Message) (*domain.ToneProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample messages to analyze")
	}

	var b strings.Builder
	for i, msg := range samples {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "--- Email %d ---\nSubject: %s\n%s\n\n",
			i+1, msg.Subject, truncateBody(bodyOrSnippet(msg), 800))
	}

	resp, err := c.CompleteJSON(ctx, toneSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var result toneResponse
	if err := json.Unmarshal([]byte(trimFence(resp)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse tone analysis: %w", err)
	}

	count := len(samples)
	if count > 10 {
		count = 10
	}

	return &domain.ToneProfile{
		Formality:   result.Formality,
		Greeting:    result.Greeting,
		SignOff:     result.SignOff,
		Traits:      result.Traits,
		SampleCount: count,
	}, nil
}
