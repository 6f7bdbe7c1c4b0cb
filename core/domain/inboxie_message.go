package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of labels the pipeline assigns. Anything the
// classifier emits outside this set is coerced to CategoryOther.
type Category string

const (
	CategoryWork       Category = "work"
	CategoryPersonal   Category = "personal"
	CategoryNewsletter Category = "newsletter"
	CategoryShopping   Category = "shopping"
	CategorySupport    Category = "support"
	CategoryOther      Category = "other"
)

// AllCategories lists every valid category in label-creation order.
var AllCategories = []Category{
	CategoryWork,
	CategoryPersonal,
	CategoryNewsletter,
	CategoryShopping,
	CategorySupport,
	CategoryOther,
}

// ParseCategory converts a string to a Category. Unknown or empty input maps
// to CategoryOther; it never fails.
func ParseCategory(s string) Category {
	switch Category(normalizeCategory(s)) {
	case CategoryWork:
		return CategoryWork
	case CategoryPersonal:
		return CategoryPersonal
	case CategoryNewsletter:
		return CategoryNewsletter
	case CategoryShopping:
		return CategoryShopping
	case CategorySupport:
		return CategorySupport
	default:
		return CategoryOther
	}
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`))
}

// IsValid reports whether c is a member of the closed category set.
func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryNewsletter, CategoryShopping, CategorySupport, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// Urgency grades how quickly a reply is needed.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency coerces unknown input to UrgencyLow.
func ParseUrgency(s string) Urgency {
	switch Urgency(normalizeCategory(s)) {
	case UrgencyMedium:
		return UrgencyMedium
	case UrgencyHigh:
		return UrgencyHigh
	default:
		return UrgencyLow
	}
}

// Message is a transient view of a provider message flowing through the
// pipeline. It is never persisted as-is; only the ProcessingRecord survives.
type Message struct {
	ID         string    `json:"id"`        // provider message id
	ThreadID   string    `json:"thread_id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	To         string    `json:"to,omitempty"`
	Snippet    string    `json:"snippet"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	LabelIDs   []string  `json:"label_ids,omitempty"`
}

// ReplyAssessment is the classifier's judgement on whether a message needs a
// human reply.
type ReplyAssessment struct {
	NeedsReply bool    `json:"needs_reply"`
	Reason     string  `json:"reason"`
	Urgency    Urgency `json:"urgency"`
}

// NoReplyAssessment builds the default negative assessment with a reason.
func NoReplyAssessment(reason string) ReplyAssessment {
	return ReplyAssessment{NeedsReply: false, Reason: reason, Urgency: UrgencyLow}
}

// ProcessingRecord is the persisted outcome for one message. Idempotent by
// (UserID, MessageID): reprocessing the same message is a no-op.
type ProcessingRecord struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	MessageID   string    `json:"message_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	Category    Category  `json:"category"`
	NeedsReply  bool      `json:"needs_reply"`
	Reason      string    `json:"reason,omitempty"`
	Urgency     Urgency   `json:"urgency"`
	LabelID     string    `json:"label_id,omitempty"` // empty when labeling failed this run
	ProcessedAt time.Time `json:"processed_at"`
}

// ClassifiedMessage pairs a message with its classification outcome while the
// batch moves between stages.
type ClassifiedMessage struct {
	Message    *Message
	Category   Category
	Assessment ReplyAssessment
}

// RunPhase names the stage the orchestrator loop is in.
type RunPhase string

const (
	PhaseFetching    RunPhase = "fetching"
	PhaseClassifying RunPhase = "classifying"
	PhaseLabeling    RunPhase = "labeling"
	PhasePersisting  RunPhase = "persisting"
	PhaseDone        RunPhase = "done"
)

// BatchResult aggregates what one batch accomplished.
type BatchResult struct {
	Fetched    int `json:"fetched"`
	Classified int `json:"classified"`
	Labeled    int `json:"labeled"`
	Persisted  int `json:"persisted"`
	Failed     int `json:"failed"`
}

// RunReport is the final accounting for a pipeline run, returned to the
// caller even when the run halts early on a fatal error.
type RunReport struct {
	UserID         uuid.UUID        `json:"user_id"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Batches        int              `json:"batches"`
	TotalFetched   int              `json:"total_fetched"`
	TotalLabeled   int              `json:"total_labeled"`
	TotalPersisted int              `json:"total_persisted"`
	TotalFailed    int              `json:"total_failed"`
	ByCategory     map[Category]int `json:"by_category"`
	ByUrgency      map[Urgency]int  `json:"by_urgency"`
	NeedsReply     int              `json:"needs_reply"`
	Halted         bool             `json:"halted"`
	HaltReason     string           `json:"halt_reason,omitempty"`
}

// NewRunReport initializes the report with allocated breakdown maps.
func NewRunReport(userID uuid.UUID) *RunReport {
	return &RunReport{
		UserID:     userID,
		StartedAt:  time.Now().UTC(),
		ByCategory: make(map[Category]int),
		ByUrgency:  make(map[Urgency]int),
	}
}

// Absorb folds a batch result into the run totals.
func (r *RunReport) Absorb(b BatchResult) {
	r.Batches++
	r.TotalFetched += b.Fetched
	r.TotalLabeled += b.Labeled
	r.TotalPersisted += b.Persisted
	r.TotalFailed += b.Failed
}

// Count tracks one classified message in the breakdowns.
func (r *RunReport) Count(category Category, assessment ReplyAssessment) {
	r.ByCategory[category]++
	r.ByUrgency[assessment.Urgency]++
	if assessment.NeedsReply {
		r.NeedsReply++
	}
}
