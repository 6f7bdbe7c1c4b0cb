package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
)

func TestFetcherShortPageStops(t *testing.T) {
	// Mailbox smaller than one page: the fetcher must stop after the first
	// page and not request further pages.
	provider := newFakeProvider(
		testMessage("m1", "alice@example.com"),
		testMessage("m2", "bob@example.com"),
		testMessage("m3", "carol@example.com"),
	)
	fetcher := NewFetcher(provider, newFakeRecordRepo(), FetcherConfig{PageSize: 25}, testLogger())

	msgs, err := fetcher.FetchNew(context.Background(), testToken(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("fetched %d messages, want 3", len(msgs))
	}
	if provider.listCalls != 1 {
		t.Errorf("listCalls = %d, want 1", provider.listCalls)
	}
}

func TestFetcherStopsAtTarget(t *testing.T) {
	var mailbox []*domain.Message
	for i := 0; i < 50; i++ {
		mailbox = append(mailbox, testMessage(fmt.Sprintf("m%02d", i), "alice@example.com"))
	}
	provider := newFakeProvider(mailbox...)
	fetcher := NewFetcher(provider, newFakeRecordRepo(), FetcherConfig{PageSize: 10}, testLogger())

	msgs, err := fetcher.FetchNew(context.Background(), testToken(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 10 {
		t.Errorf("fetched %d messages, want 10", len(msgs))
	}
	if provider.listCalls != 1 {
		t.Errorf("listCalls = %d, want 1", provider.listCalls)
	}
}

func TestFetcherSkipsProcessed(t *testing.T) {
	provider := newFakeProvider(
		testMessage("m1", "alice@example.com"),
		testMessage("m2", "bob@example.com"),
		testMessage("m3", "carol@example.com"),
	)
	records := newFakeRecordRepo()
	userID := uuid.New()
	records.SaveBatch(context.Background(), []*domain.ProcessingRecord{
		{UserID: userID, MessageID: "m2", Category: domain.CategoryWork},
	})

	fetcher := NewFetcher(provider, records, FetcherConfig{PageSize: 25}, testLogger())

	msgs, err := fetcher.FetchNew(context.Background(), testToken(), userID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("fetched %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.ID == "m2" {
			t.Error("already-processed m2 was fetched again")
		}
	}
}

func TestFetcherCeiling(t *testing.T) {
	var mailbox []*domain.Message
	for i := 0; i < 40; i++ {
		mailbox = append(mailbox, testMessage(fmt.Sprintf("m%02d", i), "alice@example.com"))
	}
	provider := newFakeProvider(mailbox...)
	records := newFakeRecordRepo()

	// Mark everything processed so the target is never reached; the ceiling
	// must stop the loop instead.
	ctx := context.Background()
	userID := uuid.New()
	var recs []*domain.ProcessingRecord
	for _, m := range mailbox {
		recs = append(recs, &domain.ProcessingRecord{UserID: userID, MessageID: m.ID, Category: domain.CategoryOther})
	}
	records.SaveBatch(ctx, recs)

	fetcher := NewFetcher(provider, records, FetcherConfig{PageSize: 10, FetchCeiling: 20}, testLogger())

	msgs, err := fetcher.FetchNew(ctx, testToken(), userID, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("fetched %d messages, want 0", len(msgs))
	}
	if provider.listCalls > 2 {
		t.Errorf("listCalls = %d, ceiling should stop at 2 pages", provider.listCalls)
	}
}

func TestFetcherTransientListError(t *testing.T) {
	provider := newFakeProvider(testMessage("m1", "alice@example.com"))
	provider.listErr = out.NewProviderError("fake", out.ProviderErrNetwork, "flaky", nil, true)

	fetcher := NewFetcher(provider, newFakeRecordRepo(), FetcherConfig{PageSize: 25}, testLogger())

	msgs, err := fetcher.FetchNew(context.Background(), testToken(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("transient page error should not abort the run: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("fetched %d messages from a failed page, want 0", len(msgs))
	}
}

func TestFetcherAuthErrorFatal(t *testing.T) {
	provider := newFakeProvider(testMessage("m1", "alice@example.com"))
	provider.listErr = out.NewProviderError("fake", out.ProviderErrTokenExpired, "expired", nil, false)

	fetcher := NewFetcher(provider, newFakeRecordRepo(), FetcherConfig{PageSize: 25}, testLogger())

	_, err := fetcher.FetchNew(context.Background(), testToken(), uuid.New(), 10)
	if err == nil {
		t.Fatal("expected fatal auth error to propagate")
	}
	var provErr *out.ProviderError
	if !errors.As(err, &provErr) || !provErr.Fatal() {
		t.Errorf("expected fatal provider error, got %v", err)
	}
}
