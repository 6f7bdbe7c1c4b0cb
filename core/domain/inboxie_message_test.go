package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Category
	}{
		{"exact match", "work", CategoryWork},
		{"uppercase", "NEWSLETTER", CategoryNewsletter},
		{"mixed case with spaces", "  Shopping ", CategoryShopping},
		{"quoted llm output", `"support"`, CategorySupport},
		{"personal", "personal", CategoryPersonal},
		{"unknown coerced to other", "spam", CategoryOther},
		{"empty coerced to other", "", CategoryOther},
		{"garbage coerced to other", "not-a-category!!", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategory(tt.input)
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if !got.IsValid() {
				t.Errorf("ParseCategory(%q) produced invalid category %q", tt.input, got)
			}
		})
	}
}

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		input string
		want  Urgency
	}{
		{"low", UrgencyLow},
		{"medium", UrgencyMedium},
		{"HIGH", UrgencyHigh},
		{"unknown", UrgencyLow},
		{"", UrgencyLow},
	}

	for _, tt := range tests {
		if got := ParseUrgency(tt.input); got != tt.want {
			t.Errorf("ParseUrgency(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRunReportAbsorb(t *testing.T) {
	report := NewRunReport(uuid.New())

	report.Absorb(BatchResult{Fetched: 25, Classified: 25, Labeled: 20, Persisted: 23, Failed: 2})
	report.Absorb(BatchResult{Fetched: 10, Classified: 10, Labeled: 10, Persisted: 10, Failed: 0})

	if report.Batches != 2 {
		t.Errorf("Batches = %d, want 2", report.Batches)
	}
	if report.TotalFetched != 35 {
		t.Errorf("TotalFetched = %d, want 35", report.TotalFetched)
	}
	if report.TotalPersisted != 33 {
		t.Errorf("TotalPersisted = %d, want 33", report.TotalPersisted)
	}
	if report.TotalFailed != 2 {
		t.Errorf("TotalFailed = %d, want 2", report.TotalFailed)
	}
}

func TestRunReportCount(t *testing.T) {
	report := NewRunReport(uuid.New())

	report.Count(CategoryWork, ReplyAssessment{NeedsReply: true, Urgency: UrgencyHigh})
	report.Count(CategoryWork, NoReplyAssessment("newsletter"))
	report.Count(CategoryOther, NoReplyAssessment("stale"))

	if report.ByCategory[CategoryWork] != 2 {
		t.Errorf("ByCategory[work] = %d, want 2", report.ByCategory[CategoryWork])
	}
	if report.ByUrgency[UrgencyLow] != 2 {
		t.Errorf("ByUrgency[low] = %d, want 2", report.ByUrgency[UrgencyLow])
	}
	if report.NeedsReply != 1 {
		t.Errorf("NeedsReply = %d, want 1", report.NeedsReply)
	}
}

func TestQuotaRemaining(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		limit     int
		remaining int
		exhausted bool
	}{
		{"fresh", 0, 100, 100, false},
		{"partial", 40, 100, 60, false},
		{"exact limit", 100, 100, 0, true},
		{"over limit clamps", 120, 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &UserQuota{EmailsProcessed: tt.processed, Limit: tt.limit}
			if got := q.Remaining(); got != tt.remaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.remaining)
			}
			if got := q.Exhausted(); got != tt.exhausted {
				t.Errorf("Exhausted() = %v, want %v", got, tt.exhausted)
			}
		})
	}
}

func TestColorForCategory(t *testing.T) {
	work := ColorForCategory("Work")
	if work.Background != "#4a86e8" {
		t.Errorf("work background = %s, want #4a86e8", work.Background)
	}

	// Unknown names fall back to gray.
	unknown := ColorForCategory("mystery")
	if unknown.Background != "#999999" {
		t.Errorf("fallback background = %s, want #999999", unknown.Background)
	}

	// Case-insensitive: same color either way.
	if ColorForCategory("SHOPPING") != ColorForCategory("shopping") {
		t.Error("expected case-insensitive color lookup")
	}
}

func TestLabelNameForCategory(t *testing.T) {
	if got := LabelNameForCategory(CategoryWork); got != "Inboxie/Work" {
		t.Errorf("LabelNameForCategory(work) = %q, want Inboxie/Work", got)
	}
	if got := LabelNameForCategory(Category("")); got != "Inboxie/Other" {
		t.Errorf("LabelNameForCategory(empty) = %q, want Inboxie/Other", got)
	}
}
