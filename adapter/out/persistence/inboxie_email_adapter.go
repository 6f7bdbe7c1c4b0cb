package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inboxie_server/core/domain"
)

// ProcessedEmailAdapter implements out.ProcessedEmailRepository using
// PostgreSQL. Idempotence rides on UNIQUE (user_id, message_id).
type ProcessedEmailAdapter struct {
	db *sqlx.DB
}

func NewProcessedEmailAdapter(db *sqlx.DB) *ProcessedEmailAdapter {
	return &ProcessedEmailAdapter{db: db}
}

type processedEmailRow struct {
	ID          int64     `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	MessageID   string    `db:"message_id"`
	ThreadID    string    `db:"thread_id"`
	Subject     string    `db:"subject"`
	FromEmail   string    `db:"from_email"`
	Category    string    `db:"category"`
	NeedsReply  bool      `db:"needs_reply"`
	Reason      string    `db:"reason"`
	Urgency     string    `db:"urgency"`
	LabelID     string    `db:"label_id"`
	ProcessedAt time.Time `db:"processed_at"`
}

func (r *processedEmailRow) toEntity() *domain.ProcessingRecord {
	return &domain.ProcessingRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		MessageID:   r.MessageID,
		ThreadID:    r.ThreadID,
		Subject:     r.Subject,
		From:        r.FromEmail,
		Category:    domain.Category(r.Category),
		NeedsReply:  r.NeedsReply,
		Reason:      r.Reason,
		Urgency:     domain.Urgency(r.Urgency),
		LabelID:     r.LabelID,
		ProcessedAt: r.ProcessedAt,
	}
}

// ProcessedIDs reports which of messageIDs already have a record.
func (a *ProcessedEmailAdapter) ProcessedIDs(ctx context.Context, userID uuid.UUID, messageIDs []string) (map[string]bool, error) {
	if len(messageIDs) == 0 {
		return map[string]bool{}, nil
	}

	var ids []string
	query := `
		SELECT message_id
		FROM processed_emails
		WHERE user_id = $1 AND message_id = ANY($2)`

	if err := a.db.SelectContext(ctx, &ids, query, userID, pq.Array(messageIDs)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}

// SaveBatch inserts records, skipping duplicates, and returns how many rows
// were actually inserted.
func (a *ProcessedEmailAdapter) SaveBatch(ctx context.Context, records []*domain.ProcessingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO processed_emails
			(user_id, message_id, thread_id, subject, from_email,
			 category, needs_reply, reason, urgency, label_id, processed_at)
		VALUES
			(:user_id, :message_id, :thread_id, :subject, :from_email,
			 :category, :needs_reply, :reason, :urgency, :label_id, :processed_at)
		ON CONFLICT (user_id, message_id) DO NOTHING`

	rows := make([]processedEmailRow, len(records))
	for i, rec := range records {
		rows[i] = processedEmailRow{
			UserID:      rec.UserID,
			MessageID:   rec.MessageID,
			ThreadID:    rec.ThreadID,
			Subject:     rec.Subject,
			FromEmail:   rec.From,
			Category:    string(rec.Category),
			NeedsReply:  rec.NeedsReply,
			Reason:      rec.Reason,
			Urgency:     string(rec.Urgency),
			LabelID:     rec.LabelID,
			ProcessedAt: rec.ProcessedAt,
		}
	}

	result, err := a.db.NamedExecContext(ctx, query, rows)
	if err != nil {
		return 0, err
	}
	return insertedRows(result)
}

// insertedRows reports the affected-row count of an insert. When the driver
// cannot report it, the count is 0: the quota counter is fed from this value
// and must never exceed what was actually persisted.
func insertedRows(result sql.Result) (int, error) {
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(inserted), nil
}

func (a *ProcessedEmailAdapter) GetByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*domain.ProcessingRecord, error) {
	var row processedEmailRow
	query := `
		SELECT id, user_id, message_id, thread_id, subject, from_email,
		       category, needs_reply, reason, urgency, label_id, processed_at
		FROM processed_emails
		WHERE user_id = $1 AND message_id = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// CategoryStats returns per-category record counts.
func (a *ProcessedEmailAdapter) CategoryStats(ctx context.Context, userID uuid.UUID) (map[domain.Category]int, error) {
	var rows []struct {
		Category string `db:"category"`
		Count    int    `db:"count"`
	}
	query := `
		SELECT category, COUNT(*) AS count
		FROM processed_emails
		WHERE user_id = $1
		GROUP BY category`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	stats := make(map[domain.Category]int, len(rows))
	for _, r := range rows {
		stats[domain.Category(r.Category)] = r.Count
	}
	return stats, nil
}

func (a *ProcessedEmailAdapter) NeedsReplyCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM processed_emails
		WHERE user_id = $1 AND needs_reply = true`

	if err := a.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, err
	}
	return count, nil
}
