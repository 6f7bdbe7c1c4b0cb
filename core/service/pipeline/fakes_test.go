package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelFatal, Service: "test"})
}

func testToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)}
}

func testMessage(id, from string) *domain.Message {
	return &domain.Message{
		ID:         id,
		ThreadID:   "thread-" + id,
		Subject:    "subject " + id,
		From:       from,
		Snippet:    "snippet",
		ReceivedAt: time.Now().Add(-time.Hour),
	}
}

// fakeProvider is an in-memory mail provider.
type fakeProvider struct {
	mu sync.Mutex

	mailbox  []*domain.Message
	pageSize int

	labels      []domain.Label
	nextLabelID int

	listErr        error
	createLabelErr error
	addLabelErr    map[string]error // messageID -> err

	listCalls        int
	createLabelCalls int
	addLabelCalls    []string // messageIDs in application order
}

func newFakeProvider(msgs ...*domain.Message) *fakeProvider {
	return &fakeProvider{mailbox: msgs, addLabelErr: map[string]error{}}
}

func (f *fakeProvider) GetAuthURL(state string) string { return "http://auth?state=" + state }

func (f *fakeProvider) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return testToken(), nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return token, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, token *oauth2.Token, pageToken string, pageSize int) (*out.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &start)
	}
	if start >= len(f.mailbox) {
		return &out.MessagePage{}, nil
	}

	end := start + pageSize
	if end > len(f.mailbox) {
		end = len(f.mailbox)
	}

	page := &out.MessagePage{Messages: f.mailbox[start:end]}
	if end < len(f.mailbox) {
		page.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	return page, nil
}

func (f *fakeProvider) GetMessage(ctx context.Context, token *oauth2.Token, id string) (*domain.Message, error) {
	for _, m := range f.mailbox {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, out.NewProviderError("fake", out.ProviderErrNotFound, "not found", nil, false)
}

func (f *fakeProvider) ListLabels(ctx context.Context, token *oauth2.Token) ([]domain.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Label(nil), f.labels...), nil
}

func (f *fakeProvider) CreateLabel(ctx context.Context, token *oauth2.Token, name string, color domain.LabelColor) (*domain.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createLabelCalls++
	if f.createLabelErr != nil {
		return nil, f.createLabelErr
	}

	for _, l := range f.labels {
		if strings.EqualFold(l.Name, name) {
			return nil, out.NewProviderError("fake", out.ProviderErrServer, "duplicate label", nil, false)
		}
	}

	f.nextLabelID++
	label := domain.Label{
		ID:              fmt.Sprintf("label-%d", f.nextLabelID),
		Name:            name,
		TextColor:       color.Text,
		BackgroundColor: color.Background,
	}
	f.labels = append(f.labels, label)
	return &label, nil
}

func (f *fakeProvider) AddLabel(ctx context.Context, token *oauth2.Token, messageID, labelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.addLabelErr[messageID]; ok {
		return err
	}
	f.addLabelCalls = append(f.addLabelCalls, messageID)
	return nil
}

func (f *fakeProvider) CreateDraft(ctx context.Context, token *oauth2.Token, draft *out.OutgoingDraft) (string, error) {
	return "draft-1", nil
}

func (f *fakeProvider) ListSentMessages(ctx context.Context, token *oauth2.Token, limit int) ([]*domain.Message, error) {
	return nil, nil
}

// fakeLLM returns canned classifications.
type fakeLLM struct {
	mu sync.Mutex

	categories  map[string]domain.Category // messageID -> category
	classifyErr map[string]error
	assessments map[string]domain.ReplyAssessment
	assessErr   map[string]error

	classifyCalls int
	assessCalls   int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		categories:  map[string]domain.Category{},
		classifyErr: map[string]error{},
		assessments: map[string]domain.ReplyAssessment{},
		assessErr:   map[string]error{},
	}
}

func (f *fakeLLM) Classify(ctx context.Context, msg *domain.Message) (domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.classifyCalls++
	if err, ok := f.classifyErr[msg.ID]; ok {
		return domain.CategoryOther, err
	}
	if c, ok := f.categories[msg.ID]; ok {
		return c, nil
	}
	return domain.CategoryWork, nil
}

func (f *fakeLLM) AssessReply(ctx context.Context, msg *domain.Message) (domain.ReplyAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.assessCalls++
	if err, ok := f.assessErr[msg.ID]; ok {
		return domain.NoReplyAssessment("analysis error"), err
	}
	if a, ok := f.assessments[msg.ID]; ok {
		return a, nil
	}
	return domain.ReplyAssessment{NeedsReply: true, Reason: "question asked", Urgency: domain.UrgencyMedium}, nil
}

func (f *fakeLLM) GenerateReply(ctx context.Context, msg *domain.Message, tone *domain.ToneProfile) (string, error) {
	return "fake reply", nil
}

func (f *fakeLLM) AnalyzeTone(ctx context.Context, samples []*domain.Message) (*domain.ToneProfile, error) {
	return &domain.ToneProfile{Formality: "neutral"}, nil
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

// fakeUserRepo tracks quota mutations.
type fakeUserRepo struct {
	mu sync.Mutex

	quota        *domain.UserQuota
	quotaErr     error
	increments   []int
	incrementErr error
}

func newFakeUserRepo(processed, limit int) *fakeUserRepo {
	return &fakeUserRepo{
		quota: &domain.UserQuota{
			UserID:          uuid.New(),
			Plan:            domain.PlanFree,
			EmailsProcessed: processed,
			Limit:           limit,
		},
	}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return &domain.User{ID: id, Plan: domain.PlanFree}, nil
}

func (f *fakeUserRepo) GetOrCreate(ctx context.Context, email, name string) (*domain.User, error) {
	return &domain.User{ID: uuid.New(), Email: email, Name: name, Plan: domain.PlanFree}, nil
}

func (f *fakeUserRepo) GetQuota(ctx context.Context, userID uuid.UUID) (*domain.UserQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.quotaErr != nil {
		return nil, f.quotaErr
	}
	q := *f.quota
	return &q, nil
}

func (f *fakeUserRepo) IncrementProcessed(ctx context.Context, userID uuid.UUID, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.increments = append(f.increments, count)
	f.quota.EmailsProcessed += count
	return nil
}

// fakeRecordRepo is an in-memory ProcessedEmailRepository.
type fakeRecordRepo struct {
	mu sync.Mutex

	records map[string]*domain.ProcessingRecord // messageID -> record
	saveErr error

	saveCalls int
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: map[string]*domain.ProcessingRecord{}}
}

func (f *fakeRecordRepo) ProcessedIDs(ctx context.Context, userID uuid.UUID, messageIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		if _, ok := f.records[id]; ok {
			seen[id] = true
		}
	}
	return seen, nil
}

func (f *fakeRecordRepo) SaveBatch(ctx context.Context, records []*domain.ProcessingRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	if f.saveErr != nil {
		return 0, f.saveErr
	}

	inserted := 0
	for _, r := range records {
		if _, ok := f.records[r.MessageID]; ok {
			continue
		}
		f.records[r.MessageID] = r
		inserted++
	}
	return inserted, nil
}

func (f *fakeRecordRepo) GetByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*domain.ProcessingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.records[messageID]; ok {
		return r, nil
	}
	return nil, nil
}

func (f *fakeRecordRepo) CategoryStats(ctx context.Context, userID uuid.UUID) (map[domain.Category]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := map[domain.Category]int{}
	for _, r := range f.records {
		stats[r.Category]++
	}
	return stats, nil
}

func (f *fakeRecordRepo) NeedsReplyCount(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, r := range f.records {
		if r.NeedsReply {
			count++
		}
	}
	return count, nil
}
