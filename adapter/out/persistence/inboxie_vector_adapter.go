package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxie_server/core/port/out"
)

// VectorAdapter implements out.VectorStore on pgvector via pgx.
type VectorAdapter struct {
	pool *pgxpool.Pool
}

func NewVectorAdapter(pool *pgxpool.Pool) *VectorAdapter {
	return &VectorAdapter{pool: pool}
}

func (a *VectorAdapter) Upsert(ctx context.Context, doc *out.VectorDocument) error {
	query := `
		INSERT INTO message_embeddings (user_id, message_id, subject, snippet, embedding, indexed_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
		ON CONFLICT (user_id, message_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			embedding = EXCLUDED.embedding,
			indexed_at = EXCLUDED.indexed_at`

	_, err := a.pool.Exec(ctx, query,
		doc.UserID, doc.MessageID, doc.Subject, doc.Snippet,
		pgVector(doc.Embedding), doc.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// Search returns the closest messages by cosine distance.
func (a *VectorAdapter) Search(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]*out.VectorMatch, error) {
	query := `
		SELECT message_id, subject, snippet,
		       1 - (embedding <=> $2::vector) AS score
		FROM message_embeddings
		WHERE user_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3`

	rows, err := a.pool.Query(ctx, query, userID, pgVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []*out.VectorMatch
	for rows.Next() {
		var m out.VectorMatch
		if err := rows.Scan(&m.MessageID, &m.Subject, &m.Snippet, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// pgVector renders a float32 slice in pgvector's text format.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}

	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = fmt.Appendf(buf, "%f", f)
	}
	buf = append(buf, ']')
	return string(buf)
}
