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

	"github.com/parley/chat-app/internal/realtime"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a unique constraint is violated, e.g. a
// taken username.
var ErrDuplicate = errors.New("store: duplicate entry")

// UserStore persists account documents.
type UserStore struct {
	col *mongo.Collection
}

// NewUserStore creates a UserStore and ensures the unique username index.
func NewUserStore(ctx context.Context, db *mongo.Database) (*UserStore, error) {
	col := db.Collection(colUsers)

	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userName", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to create username index: %w", err)
	}

	return &UserStore{col: col}, nil
}

// Create inserts a new account. Password must already be hashed.
func (s *UserStore) Create(ctx context.Context, user User) (User, error) {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("store: failed to insert user: %w", err)
	}
	return user, nil
}

// Get returns the account with the given id.
func (s *UserStore) Get(ctx context.Context, id primitive.ObjectID) (User, error) {
	var user User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: failed to find user: %w", err)
	}
	return user, nil
}

// GetByUserName returns the account with the given username, including the
// password hash for credential checks.
func (s *UserStore) GetByUserName(ctx context.Context, userName string) (User, error) {
	var user User
	err := s.col.FindOne(ctx, bson.M{"userName": userName}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: failed to find user by username: %w", err)
	}
	return user, nil
}

// GetMany returns the accounts with the given ids, in no particular order.
// Unknown ids are silently skipped.
func (s *UserStore) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("store: failed to find users: %w", err)
	}

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("store: failed to decode users: %w", err)
	}
	return users, nil
}

// Search returns accounts whose display name matches the query
// (case-insensitive substring), excluding the given ids.
func (s *UserStore) Search(ctx context.Context, name string, exclude []primitive.ObjectID) ([]User, error) {
	filter := bson.M{
		"name": bson.M{"$regex": name, "$options": "i"},
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}

	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: user search failed: %w", err)
	}

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("store: failed to decode search results: %w", err)
	}
	return users, nil
}

// ResolveUser implements the identity resolution the socket authenticator
// needs: hex id in, display identity out.
func (s *UserStore) ResolveUser(ctx context.Context, userID string) (realtime.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return realtime.User{}, fmt.Errorf("store: invalid user id %q: %w", userID, err)
	}

	user, err := s.Get(ctx, oid)
	if err != nil {
		return realtime.User{}, err
	}
	return realtime.User{ID: user.ID.Hex(), Name: user.Name}, nil
}
