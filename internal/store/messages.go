package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore persists message documents. Its CreateMessage method is the
// narrow interface the realtime handler persists through.
type MessageStore struct {
	col *mongo.Collection
}

// NewMessageStore creates a MessageStore over the messages collection.
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{col: db.Collection(colMessages)}
}

// CreateMessage inserts a text message and returns its document id.
// Implements realtime.MessageStore.
func (s *MessageStore) CreateMessage(ctx context.Context, content, senderID, chatID string) (string, error) {
	sender, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return "", fmt.Errorf("store: invalid sender id %q: %w", senderID, err)
	}
	chat, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return "", fmt.Errorf("store: invalid chat id %q: %w", chatID, err)
	}

	msg, err := s.Create(ctx, Message{Content: content, Sender: sender, Chat: chat})
	if err != nil {
		return "", err
	}
	return msg.ID.Hex(), nil
}

// Create inserts a message document.
func (s *MessageStore) Create(ctx context.Context, msg Message) (Message, error) {
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = time.Now().UTC()

	if _, err := s.col.InsertOne(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("store: failed to insert message: %w", err)
	}
	return msg, nil
}

// ListByChat returns one page of a chat's messages in chronological order,
// plus the total message count. Pages are counted from 1 and walk backwards
// from the newest message.
func (s *MessageStore) ListByChat(ctx context.Context, chatID primitive.ObjectID, page, limit int) ([]Message, int64, error) {
	if page < 1 {
		page = 1
	}
	skip := int64((page - 1) * limit)

	total, err := s.col.CountDocuments(ctx, bson.M{"chat": chatID})
	if err != nil {
		return nil, 0, fmt.Errorf("store: failed to count messages: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip).
		SetLimit(int64(limit))
	cursor, err := s.col.Find(ctx, bson.M{"chat": chatID}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: failed to list messages: %w", err)
	}

	var messages []Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("store: failed to decode messages: %w", err)
	}

	// Fetched newest-first for paging; reverse so the page reads oldest to
	// newest.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}

// ListAttachments returns every attachment reference stored in the chat's
// messages, so the files can be removed when the chat is deleted.
func (s *MessageStore) ListAttachments(ctx context.Context, chatID primitive.ObjectID) ([]Attachment, error) {
	cursor, err := s.col.Find(ctx, bson.M{
		"chat":        chatID,
		"attachments": bson.M{"$exists": true, "$ne": bson.A{}},
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to find attachment messages: %w", err)
	}

	var messages []Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("store: failed to decode attachment messages: %w", err)
	}

	var out []Attachment
	for _, m := range messages {
		out = append(out, m.Attachments...)
	}
	return out, nil
}

// DeleteByChat removes every message belonging to the chat.
func (s *MessageStore) DeleteByChat(ctx context.Context, chatID primitive.ObjectID) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{"chat": chatID}); err != nil {
		return fmt.Errorf("store: failed to delete chat messages: %w", err)
	}
	return nil
}
