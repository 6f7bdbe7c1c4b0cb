package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"inboxie_server/core/domain"
)

// ToneAdapter implements out.ToneProfileStore using Neo4j. The profile lives
// on a User node, with traits attached as HAS_TRAIT relationships so they can
// be queried across users.
type ToneAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

// NewToneAdapter creates a new Neo4j tone profile adapter.
func NewToneAdapter(driver neo4j.DriverWithContext, dbName string) *ToneAdapter {
	return &ToneAdapter{driver: driver, dbName: dbName}
}

// EnsureIndexes creates necessary indexes and constraints.
func (a *ToneAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.user_id IS UNIQUE`,
		`CREATE INDEX trait_name_idx IF NOT EXISTS FOR (t:Trait) ON (t.name)`,
	}

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			// Ignore if already exists
			continue
		}
	}

	return nil
}

// Save upserts the user's tone profile and replaces their trait set.
func (a *ToneAdapter) Save(ctx context.Context, profile *domain.ToneProfile) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {user_id: $userID})
		SET u.formality = $formality,
			u.greeting = $greeting,
			u.sign_off = $signOff,
			u.sample_count = $sampleCount,
			u.updated_at = $updatedAt
		WITH u
		OPTIONAL MATCH (u)-[r:HAS_TRAIT]->(:Trait)
		DELETE r
		WITH DISTINCT u
		UNWIND $traits AS traitName
		MERGE (t:Trait {name: traitName})
		MERGE (u)-[:HAS_TRAIT]->(t)
	`

	// UNWIND of an empty trait list yields no rows; the SET above has
	// already run by then.
	params := map[string]interface{}{
		"userID":      profile.UserID.String(),
		"formality":   profile.Formality,
		"greeting":    profile.Greeting,
		"signOff":     profile.SignOff,
		"sampleCount": profile.SampleCount,
		"updatedAt":   profile.UpdatedAt.UTC().Format(time.RFC3339),
		"traits":      profile.Traits,
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to save tone profile: %w", err)
	}
	return nil
}

// Get retrieves the user's tone profile, or nil when none exists.
func (a *ToneAdapter) Get(ctx context.Context, userID uuid.UUID) (*domain.ToneProfile, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {user_id: $userID})
		OPTIONAL MATCH (u)-[:HAS_TRAIT]->(t:Trait)
		RETURN u.formality AS formality, u.greeting AS greeting,
			   u.sign_off AS sign_off, u.sample_count AS sample_count,
			   u.updated_at AS updated_at, collect(t.name) AS traits
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"userID": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to get tone profile: %w", err)
	}

	if !result.Next(ctx) {
		return nil, nil
	}

	record := result.Record()
	profile := &domain.ToneProfile{
		UserID:      userID,
		Formality:   getStringValue(record, "formality"),
		Greeting:    getStringValue(record, "greeting"),
		SignOff:     getStringValue(record, "sign_off"),
		SampleCount: getIntValue(record, "sample_count"),
	}

	if raw, ok := record.Get("updated_at"); ok {
		if s, ok := raw.(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				profile.UpdatedAt = ts
			}
		}
	}

	if raw, ok := record.Get("traits"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok && s != "" {
					profile.Traits = append(profile.Traits, s)
				}
			}
		}
	}

	return profile, nil
}

func getStringValue(record *neo4j.Record, key string) string {
	if raw, ok := record.Get(key); ok && raw != nil {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func getIntValue(record *neo4j.Record, key string) int {
	if raw, ok := record.Get(key); ok && raw != nil {
		if n, ok := raw.(int64); ok {
			return int(n)
		}
	}
	return 0
}
