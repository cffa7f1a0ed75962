package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RequestStore persists friend request documents.
type RequestStore struct {
	col *mongo.Collection
}

// NewRequestStore creates a RequestStore over the requests collection.
func NewRequestStore(db *mongo.Database) *RequestStore {
	return &RequestStore{col: db.Collection(colRequests)}
}

// Create inserts a pending friend request.
func (s *RequestStore) Create(ctx context.Context, sender, receiver primitive.ObjectID) (FriendRequest, error) {
	req := FriendRequest{
		ID:        primitive.NewObjectID(),
		Status:    RequestPending,
		Sender:    sender,
		Receiver:  receiver,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.col.InsertOne(ctx, req); err != nil {
		return FriendRequest{}, fmt.Errorf("store: failed to insert request: %w", err)
	}
	return req, nil
}

// Get returns the request with the given id.
func (s *RequestStore) Get(ctx context.Context, id primitive.ObjectID) (FriendRequest, error) {
	var req FriendRequest
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return FriendRequest{}, ErrNotFound
	}
	if err != nil {
		return FriendRequest{}, fmt.Errorf("store: failed to find request: %w", err)
	}
	return req, nil
}

// FindPendingBetween returns the pending request between two users, in
// either direction, or ErrNotFound.
func (s *RequestStore) FindPendingBetween(ctx context.Context, a, b primitive.ObjectID) (FriendRequest, error) {
	var req FriendRequest
	err := s.col.FindOne(ctx, bson.M{
		"status": RequestPending,
		"$or": bson.A{
			bson.M{"sender": a, "receiver": b},
			bson.M{"sender": b, "receiver": a},
		},
	}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return FriendRequest{}, ErrNotFound
	}
	if err != nil {
		return FriendRequest{}, fmt.Errorf("store: failed to find pending request: %w", err)
	}
	return req, nil
}

// ListByReceiver returns the pending requests addressed to the user.
func (s *RequestStore) ListByReceiver(ctx context.Context, receiver primitive.ObjectID) ([]FriendRequest, error) {
	cursor, err := s.col.Find(ctx, bson.M{"receiver": receiver, "status": RequestPending})
	if err != nil {
		return nil, fmt.Errorf("store: failed to list requests: %w", err)
	}

	var reqs []FriendRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("store: failed to decode requests: %w", err)
	}
	return reqs, nil
}

// Delete removes the request document.
func (s *RequestStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("store: failed to delete request: %w", err)
	}
	return nil
}
