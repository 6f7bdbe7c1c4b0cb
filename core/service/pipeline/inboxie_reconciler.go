package pipeline

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
	"inboxie_server/pkg/logger"
)

// Reconciler resolves category names to provider label ids, creating missing
// labels. The resulting map lives for one run only.
type Reconciler struct {
	provider out.MailProviderPort
	log      *logger.Logger
}

func NewReconciler(provider out.MailProviderPort, log *logger.Logger) *Reconciler {
	return &Reconciler{provider: provider, log: log}
}

// Resolve builds the category to label-id map for the given categories.
// Matching against existing labels is case-insensitive, so the pipeline never
// creates a second label differing only in case. A creation failure leaves
// that category unmapped for this run.
func (r *Reconciler) Resolve(ctx context.Context, token *oauth2.Token, categories []domain.Category) (domain.LabelMap, error) {
	existing, err := r.provider.ListLabels(ctx, token)
	if err != nil {
		var provErr *out.ProviderError
		if errors.As(err, &provErr) && !provErr.Fatal() {
			// Without the label inventory we cannot create safely; skip
			// labeling this pass, records are still persisted.
			r.log.WithError(err).Warn("label listing failed, skipping labeling this pass")
			return domain.LabelMap{}, nil
		}
		return nil, err
	}

	byName := make(map[string]string, len(existing))
	for _, l := range existing {
		byName[strings.ToLower(l.Name)] = l.ID
	}

	labels := make(domain.LabelMap, len(categories))
	for _, category := range categories {
		name := domain.LabelNameForCategory(category)
		if id, ok := byName[strings.ToLower(name)]; ok {
			labels[category] = id
			continue
		}

		created, err := r.provider.CreateLabel(ctx, token, name, domain.ColorForCategory(string(category)))
		if err != nil {
			var provErr *out.ProviderError
			if errors.As(err, &provErr) && provErr.Fatal() {
				return labels, err
			}
			r.log.WithError(err).WithField("label", name).
				Warn("label creation failed, category unmapped this run")
			continue
		}

		labels[category] = created.ID
		byName[strings.ToLower(name)] = created.ID
	}

	return labels, nil
}

// CategoriesOf collects the distinct categories present in a classified batch.
func CategoriesOf(batch []*domain.ClassifiedMessage) []domain.Category {
	seen := make(map[domain.Category]bool, len(batch))
	var categories []domain.Category
	for _, cm := range batch {
		if !seen[cm.Category] {
			seen[cm.Category] = true
			categories = append(categories, cm.Category)
		}
	}
	return categories
}
