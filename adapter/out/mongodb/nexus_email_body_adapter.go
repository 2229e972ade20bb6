// Package mongodb archives full email bodies outside the relational
// rows.
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

	"nexus_server/core/port/out"
)

const (
	collectionEmailBodies = "cuerpos_correo"

	// Bodies larger than this are gzipped before storage.
	compressionThreshold = 1024
)

// EmailBodyAdapter implements out.EmailBodyArchive using MongoDB.
type EmailBodyAdapter struct {
	collection *mongo.Collection
}

func NewEmailBodyAdapter(db *mongo.Database) *EmailBodyAdapter {
	return &EmailBodyAdapter{collection: db.Collection(collectionEmailBodies)}
}

// EnsureIndexes creates the lookup index. Called once at startup.
func (a *EmailBodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "gmail_message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "saved_at", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type emailBodyDocument struct {
	UserID         string    `bson:"user_id"`
	GmailMessageID string    `bson:"gmail_message_id"`
	Body           []byte    `bson:"body"`
	IsCompressed   bool      `bson:"is_compressed"`
	OriginalSize   int64     `bson:"original_size"`
	SavedAt        time.Time `bson:"saved_at"`
}

func (a *EmailBodyAdapter) SaveBody(ctx context.Context, userID uuid.UUID, gmailMessageID, body string) error {
	raw := []byte(body)
	doc := emailBodyDocument{
		UserID:         userID.String(),
		GmailMessageID: gmailMessageID,
		Body:           raw,
		OriginalSize:   int64(len(raw)),
		SavedAt:        time.Now(),
	}

	if len(raw) > compressionThreshold {
		compressed, err := compress(raw)
		if err != nil {
			return fmt.Errorf("compress email body: %w", err)
		}
		doc.Body = compressed
		doc.IsCompressed = true
	}

	filter := bson.M{"user_id": doc.UserID, "gmail_message_id": gmailMessageID}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("save email body: %w", err)
	}
	return nil
}

func (a *EmailBodyAdapter) GetBody(ctx context.Context, userID uuid.UUID, gmailMessageID string) (string, error) {
	filter := bson.M{"user_id": userID.String(), "gmail_message_id": gmailMessageID}

	var doc emailBodyDocument
	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", fmt.Errorf("get email body: %w", err)
	}

	raw := doc.Body
	if doc.IsCompressed {
		var err error
		raw, err = decompress(doc.Body)
		if err != nil {
			return "", fmt.Errorf("decompress email body: %w", err)
		}
	}
	return string(raw), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

var _ out.EmailBodyArchive = (*EmailBodyAdapter)(nil)
