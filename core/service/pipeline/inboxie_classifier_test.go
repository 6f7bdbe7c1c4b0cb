package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"inboxie_server/core/domain"
)

func TestClassifierOutputAlwaysInEnum(t *testing.T) {
	llm := newFakeLLM()
	llm.categories["m1"] = domain.Category("definitely-not-a-category")
	llm.classifyErr["m2"] = errors.New("model exploded")

	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10}, testLogger())

	msgs := []*domain.Message{
		testMessage("m1", "alice@example.com"),
		testMessage("m2", "bob@example.com"),
		testMessage("m3", "carol@example.com"),
	}

	results := classifier.ClassifyBatch(context.Background(), msgs)
	if len(results) != len(msgs) {
		t.Fatalf("got %d results, want %d", len(results), len(msgs))
	}
	for _, r := range results {
		if !r.Category.IsValid() {
			t.Errorf("message %s classified as %q, not in the category set", r.Message.ID, r.Category)
		}
	}

	// Invalid output and adapter failure both coerce to other.
	if results[0].Category != domain.CategoryOther {
		t.Errorf("invalid output: got %q, want other", results[0].Category)
	}
	if results[1].Category != domain.CategoryOther {
		t.Errorf("classify error: got %q, want other", results[1].Category)
	}
}

func TestNoReplySenderShortCircuit(t *testing.T) {
	// All three messages come from automated senders: every assessment must
	// be negative and the LLM reply-assessment path must never run.
	llm := newFakeLLM()
	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10}, testLogger())

	msgs := []*domain.Message{
		testMessage("m1", "noreply@service.com"),
		testMessage("m2", "do-not-reply@shop.com"),
		testMessage("m3", "notifications@app.io"),
	}

	results := classifier.ClassifyBatch(context.Background(), msgs)
	for _, r := range results {
		if r.Assessment.NeedsReply {
			t.Errorf("message %s from automated sender flagged as needing reply", r.Message.ID)
		}
	}
	if llm.assessCalls != 0 {
		t.Errorf("assessCalls = %d, pre-filter should short-circuit all LLM calls", llm.assessCalls)
	}
	if llm.classifyCalls != 3 {
		t.Errorf("classifyCalls = %d, categorization should still run", llm.classifyCalls)
	}
}

func TestNoReplyCategorySkipsAssessment(t *testing.T) {
	llm := newFakeLLM()
	llm.categories["m1"] = domain.CategoryNewsletter
	llm.categories["m2"] = domain.CategoryShopping

	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10}, testLogger())

	results := classifier.ClassifyBatch(context.Background(), []*domain.Message{
		testMessage("m1", "editor@weekly.com"),
		testMessage("m2", "orders@store.com"),
	})

	for _, r := range results {
		if r.Assessment.NeedsReply {
			t.Errorf("no-reply category %s still flagged needs_reply", r.Category)
		}
	}
	if llm.assessCalls != 0 {
		t.Errorf("assessCalls = %d, want 0", llm.assessCalls)
	}
}

func TestStaleMessageSkipsAssessment(t *testing.T) {
	llm := newFakeLLM()
	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10, ReplyWindow: 14 * 24 * time.Hour}, testLogger())

	old := testMessage("m1", "alice@example.com")
	old.ReceivedAt = time.Now().Add(-30 * 24 * time.Hour)

	results := classifier.ClassifyBatch(context.Background(), []*domain.Message{old})
	if results[0].Assessment.NeedsReply {
		t.Error("stale message flagged as needing reply")
	}
	if llm.assessCalls != 0 {
		t.Errorf("assessCalls = %d, want 0 for stale message", llm.assessCalls)
	}
}

func TestAssessmentErrorDegrades(t *testing.T) {
	llm := newFakeLLM()
	llm.assessErr["m1"] = errors.New("bad structured output")

	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10}, testLogger())

	results := classifier.ClassifyBatch(context.Background(), []*domain.Message{
		testMessage("m1", "alice@example.com"),
	})

	a := results[0].Assessment
	if a.NeedsReply {
		t.Error("failed assessment should default to needs_reply=false")
	}
	if a.Reason != "analysis error" {
		t.Errorf("reason = %q, want analysis error", a.Reason)
	}
}

func TestRecentPersonalMailReachesLLM(t *testing.T) {
	llm := newFakeLLM()
	llm.assessments["m1"] = domain.ReplyAssessment{NeedsReply: true, Reason: "meeting request", Urgency: domain.UrgencyHigh}

	classifier := NewClassifier(llm, ClassifierConfig{ChunkSize: 10}, testLogger())

	results := classifier.ClassifyBatch(context.Background(), []*domain.Message{
		testMessage("m1", "alice@example.com"),
	})

	if llm.assessCalls != 1 {
		t.Fatalf("assessCalls = %d, want 1", llm.assessCalls)
	}
	a := results[0].Assessment
	if !a.NeedsReply || a.Urgency != domain.UrgencyHigh {
		t.Errorf("assessment not passed through: %+v", a)
	}
}
