package llm

import (
	"testing"
	"time"

	"inboxie_server/core/domain"
)

func TestTrimFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"category": "work"}`, `{"category": "work"}`},
		{"json fence", "```json\n{\"category\": \"work\"}\n```", `{"category": "work"}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimFence(tt.input); got != tt.want {
				t.Errorf("trimFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncateBody(t *testing.T) {
	short := "hello"
	if got := truncateBody(short, 10); got != short {
		t.Errorf("expected short body unchanged, got %q", got)
	}

	long := "abcdefghij"
	if got := truncateBody(long, 4); got != "abcd..." {
		t.Errorf("truncateBody = %q, want abcd...", got)
	}
}

func TestBodyOrSnippet(t *testing.T) {
	msg := &domain.Message{Snippet: "snippet", ReceivedAt: time.Now()}
	if got := bodyOrSnippet(msg); got != "snippet" {
		t.Errorf("expected snippet fallback, got %q", got)
	}

	msg.Body = "full body"
	if got := bodyOrSnippet(msg); got != "full body" {
		t.Errorf("expected body preferred, got %q", got)
	}
}
