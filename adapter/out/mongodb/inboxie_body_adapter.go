package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionMessageBodies = "message_bodies"

	// Only compress bodies larger than this.
	compressionThreshold = 1024

	bodyTTL = 30 * 24 * time.Hour
)

// BodyAdapter implements out.MessageBodyRepository using MongoDB. Bodies are
// a cache: they expire via a TTL index and callers must tolerate misses.
type BodyAdapter struct {
	collection *mongo.Collection
}

// NewBodyAdapter creates a new MongoDB message body adapter.
func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	return &BodyAdapter{collection: db.Collection(collectionMessageBodies)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// bodyDocument represents the MongoDB document structure.
type bodyDocument struct {
	UserID       string    `bson:"user_id"`
	MessageID    string    `bson:"message_id"`
	Body         []byte    `bson:"body"`
	IsCompressed bool      `bson:"is_compressed"`
	OriginalSize int64     `bson:"original_size"`
	CachedAt     time.Time `bson:"cached_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

// Save caches a message body, replacing any previous copy.
func (a *BodyAdapter) Save(ctx context.Context, userID uuid.UUID, messageID, body string) error {
	raw := []byte(body)
	doc := bodyDocument{
		UserID:       userID.String(),
		MessageID:    messageID,
		Body:         raw,
		OriginalSize: int64(len(raw)),
		CachedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(bodyTTL),
	}

	if len(raw) > compressionThreshold {
		compressed, err := compress(raw)
		if err == nil && len(compressed) < len(raw) {
			doc.Body = compressed
			doc.IsCompressed = true
		}
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"user_id": doc.UserID, "message_id": messageID}

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to save message body: %w", err)
	}
	return nil
}

// Get retrieves a cached message body. A miss returns empty with no error.
func (a *BodyAdapter) Get(ctx context.Context, userID uuid.UUID, messageID string) (string, error) {
	var doc bodyDocument
	filter := bson.M{"user_id": userID.String(), "message_id": messageID}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", fmt.Errorf("failed to get message body: %w", err)
	}

	if !doc.IsCompressed {
		return string(doc.Body), nil
	}

	raw, err := decompress(doc.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decompress message body: %w", err)
	}
	return string(raw), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
