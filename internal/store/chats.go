package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatStore persists conversation documents.
type ChatStore struct {
	col *mongo.Collection
}

// NewChatStore creates a ChatStore over the chats collection.
func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{col: db.Collection(colChats)}
}

// Create inserts a new chat.
func (s *ChatStore) Create(ctx context.Context, chat Chat) (Chat, error) {
	now := time.Now().UTC()
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt = now
	chat.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, chat); err != nil {
		return Chat{}, fmt.Errorf("store: failed to insert chat: %w", err)
	}
	return chat, nil
}

// Get returns the chat with the given id.
func (s *ChatStore) Get(ctx context.Context, id primitive.ObjectID) (Chat, error) {
	var chat Chat
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("store: failed to find chat: %w", err)
	}
	return chat, nil
}

// ListByMember returns every chat the user belongs to, newest first.
func (s *ChatStore) ListByMember(ctx context.Context, userID primitive.ObjectID) ([]Chat, error) {
	return s.list(ctx, bson.M{"members": userID})
}

// ListDirectByMember returns the user's non-group chats.
func (s *ChatStore) ListDirectByMember(ctx context.Context, userID primitive.ObjectID) ([]Chat, error) {
	return s.list(ctx, bson.M{"members": userID, "groupChat": false})
}

// ListGroupsByCreator returns the group chats the user created and still
// belongs to.
func (s *ChatStore) ListGroupsByCreator(ctx context.Context, userID primitive.ObjectID) ([]Chat, error) {
	return s.list(ctx, bson.M{"members": userID, "groupChat": true, "creator": userID})
}

func (s *ChatStore) list(ctx context.Context, filter bson.M) ([]Chat, error) {
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("store: failed to list chats: %w", err)
	}

	var chats []Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("store: failed to decode chats: %w", err)
	}
	return chats, nil
}

// Update replaces the chat's mutable fields: name, creator, members.
func (s *ChatStore) Update(ctx context.Context, chat Chat) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": chat.ID}, bson.M{"$set": bson.M{
		"name":      chat.Name,
		"creator":   chat.Creator,
		"members":   chat.Members,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("store: failed to update chat: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the chat document.
func (s *ChatStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: failed to delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
