// Package store persists users, chats, messages, and friend requests in
// MongoDB. Each entity gets its own small repository type over one
// collection; the realtime layer only ever sees the narrow message-create
// interface.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	colUsers    = "users"
	colChats    = "chats"
	colMessages = "messages"
	colRequests = "requests"
)

// Connect opens a MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("store: mongo ping failed: %w", err)
	}

	return client.Database(dbName), nil
}
