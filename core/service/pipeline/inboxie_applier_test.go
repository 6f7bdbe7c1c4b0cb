package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/ratelimit"
)

func testApplier(provider *fakeProvider, records *fakeRecordRepo, users *fakeUserRepo) *Applier {
	return NewApplier(provider, records, users,
		ratelimit.NewTokenBucket(1000, 1000), ApplierConfig{PersistChunk: 2}, testLogger())
}

func classifiedBatch(msgs ...*domain.Message) []*domain.ClassifiedMessage {
	batch := make([]*domain.ClassifiedMessage, len(msgs))
	for i, m := range msgs {
		batch[i] = &domain.ClassifiedMessage{
			Message:    m,
			Category:   domain.CategoryWork,
			Assessment: domain.NoReplyAssessment("test"),
		}
	}
	return batch
}

func TestApplierQuotaMatchesPersistedCount(t *testing.T) {
	provider := newFakeProvider()
	provider.addLabelErr["m2"] = out.NewProviderError("fake", out.ProviderErrRateLimit, "throttled", nil, true)
	records := newFakeRecordRepo()
	users := newFakeUserRepo(0, 100)
	applier := testApplier(provider, records, users)

	batch := classifiedBatch(
		testMessage("m1", "a@x.com"),
		testMessage("m2", "b@x.com"),
		testMessage("m3", "c@x.com"),
	)
	labels := domain.LabelMap{domain.CategoryWork: "label-1"}

	result, err := applier.Apply(context.Background(), testToken(), uuid.New(), batch, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Label failure on m2 is isolated; its record is still written.
	if result.Labeled != 2 {
		t.Errorf("Labeled = %d, want 2", result.Labeled)
	}
	if result.Persisted != 3 {
		t.Errorf("Persisted = %d, want 3", result.Persisted)
	}

	// Quota moves exactly once, by the persisted count.
	if len(users.increments) != 1 || users.increments[0] != 3 {
		t.Errorf("increments = %v, want one increment of 3", users.increments)
	}
}

func TestApplierPersistFailureSkipsQuota(t *testing.T) {
	provider := newFakeProvider()
	records := newFakeRecordRepo()
	records.saveErr = errors.New("datastore down")
	users := newFakeUserRepo(0, 100)
	applier := testApplier(provider, records, users)

	batch := classifiedBatch(testMessage("m1", "a@x.com"))
	labels := domain.LabelMap{domain.CategoryWork: "label-1"}

	result, err := applier.Apply(context.Background(), testToken(), uuid.New(), batch, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Persisted != 0 {
		t.Errorf("Persisted = %d, want 0", result.Persisted)
	}
	if len(users.increments) != 0 {
		t.Errorf("quota incremented %v despite zero persisted records", users.increments)
	}
}

func TestApplierUnmappedCategoryGoesUnlabeled(t *testing.T) {
	provider := newFakeProvider()
	records := newFakeRecordRepo()
	users := newFakeUserRepo(0, 100)
	applier := testApplier(provider, records, users)

	batch := classifiedBatch(testMessage("m1", "a@x.com"))

	// Empty label map: reconciliation failed for this category.
	result, err := applier.Apply(context.Background(), testToken(), uuid.New(), batch, domain.LabelMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.addLabelCalls) != 0 {
		t.Errorf("addLabelCalls = %v, want none", provider.addLabelCalls)
	}
	if result.Persisted != 1 {
		t.Errorf("Persisted = %d, record must be written even without a label", result.Persisted)
	}
	if rec := records.records["m1"]; rec == nil || rec.LabelID != "" {
		t.Errorf("record label id should be empty, got %+v", rec)
	}
}

func TestApplierFatalProviderErrorHalts(t *testing.T) {
	provider := newFakeProvider()
	provider.addLabelErr["m1"] = out.NewProviderError("fake", out.ProviderErrAuth, "bad credentials", nil, false)
	records := newFakeRecordRepo()
	users := newFakeUserRepo(0, 100)
	applier := testApplier(provider, records, users)

	batch := classifiedBatch(testMessage("m1", "a@x.com"))
	labels := domain.LabelMap{domain.CategoryWork: "label-1"}

	_, err := applier.Apply(context.Background(), testToken(), uuid.New(), batch, labels)
	if err == nil {
		t.Fatal("expected auth error to abort the batch")
	}
}

func TestApplierLabelOrderIsSequential(t *testing.T) {
	provider := newFakeProvider()
	records := newFakeRecordRepo()
	users := newFakeUserRepo(0, 100)
	applier := testApplier(provider, records, users)

	batch := classifiedBatch(
		testMessage("m1", "a@x.com"),
		testMessage("m2", "b@x.com"),
		testMessage("m3", "c@x.com"),
	)
	labels := domain.LabelMap{domain.CategoryWork: "label-1"}

	if _, err := applier.Apply(context.Background(), testToken(), uuid.New(), batch, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"m1", "m2", "m3"}
	if len(provider.addLabelCalls) != len(want) {
		t.Fatalf("addLabelCalls = %v, want %v", provider.addLabelCalls, want)
	}
	for i, id := range want {
		if provider.addLabelCalls[i] != id {
			t.Errorf("apply order[%d] = %s, want %s", i, provider.addLabelCalls[i], id)
		}
	}
}
