package pipeline

import (
	"context"
	"testing"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
)

func TestReconcilerReusesExistingLabelAnyCase(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []domain.Label{{ID: "label-9", Name: "INBOXIE/WORK"}}

	reconciler := NewReconciler(provider, testLogger())

	labels, err := reconciler.Resolve(context.Background(), testToken(), []domain.Category{domain.CategoryWork})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, ok := labels.IDFor(domain.CategoryWork); !ok || id != "label-9" {
		t.Errorf("work mapped to %q, want existing label-9", id)
	}
	if provider.createLabelCalls != 0 {
		t.Errorf("createLabelCalls = %d, existing label must be reused", provider.createLabelCalls)
	}
}

func TestReconcilerCreatesMissingWithColors(t *testing.T) {
	provider := newFakeProvider()
	reconciler := NewReconciler(provider, testLogger())

	labels, err := reconciler.Resolve(context.Background(), testToken(),
		[]domain.Category{domain.CategoryWork, domain.CategorySupport})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(labels) != 2 {
		t.Fatalf("mapped %d categories, want 2", len(labels))
	}
	if provider.createLabelCalls != 2 {
		t.Errorf("createLabelCalls = %d, want 2", provider.createLabelCalls)
	}

	for _, l := range provider.labels {
		want := domain.ColorForCategory(l.Name[len("Inboxie/"):])
		if l.BackgroundColor != want.Background {
			t.Errorf("label %s background = %s, want %s", l.Name, l.BackgroundColor, want.Background)
		}
	}
}

func TestReconcilerCreationFailureLeavesUnmapped(t *testing.T) {
	provider := newFakeProvider()
	provider.createLabelErr = out.NewProviderError("fake", out.ProviderErrServer, "quota", nil, true)

	reconciler := NewReconciler(provider, testLogger())

	labels, err := reconciler.Resolve(context.Background(), testToken(), []domain.Category{domain.CategoryWork})
	if err != nil {
		t.Fatalf("creation failure must not abort the run: %v", err)
	}
	if _, ok := labels.IDFor(domain.CategoryWork); ok {
		t.Error("failed category should stay unmapped this run")
	}
}

func TestCategoriesOfDeduplicates(t *testing.T) {
	batch := []*domain.ClassifiedMessage{
		{Message: testMessage("m1", "a@x.com"), Category: domain.CategoryWork},
		{Message: testMessage("m2", "b@x.com"), Category: domain.CategoryWork},
		{Message: testMessage("m3", "c@x.com"), Category: domain.CategoryOther},
	}

	categories := CategoriesOf(batch)
	if len(categories) != 2 {
		t.Errorf("got %d categories, want 2", len(categories))
	}
}
