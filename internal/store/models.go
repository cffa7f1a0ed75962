package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Attachment is a stored file reference: the storage object id and the URL
// clients fetch it from.
type Attachment struct {
	PublicID string `bson:"public_id" json:"public_id"`
	URL      string `bson:"url" json:"url"`
}

// User is an account document. Password carries the bcrypt hash and is
// never serialized to JSON.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	UserName  string             `bson:"userName" json:"userName"`
	Password  string             `bson:"password" json:"-"`
	Avatar    Attachment         `bson:"avatar" json:"avatar"`
	Bio       string             `bson:"bio,omitempty" json:"bio,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Chat is a conversation document. Direct chats have two members and no
// creator semantics; group chats have a creator who administers membership.
type Chat struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name      string               `bson:"name" json:"name"`
	GroupChat bool                 `bson:"groupChat" json:"groupChat"`
	Creator   primitive.ObjectID   `bson:"creator,omitempty" json:"creator,omitempty"`
	Members   []primitive.ObjectID `bson:"members" json:"members"`
	CreatedAt time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasMember reports whether the given user is a member of the chat.
func (c *Chat) HasMember(userID primitive.ObjectID) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// MemberHexIDs returns the chat's member ids as hex strings, the form the
// realtime layer works with.
func (c *Chat) MemberHexIDs() []string {
	out := make([]string, len(c.Members))
	for i, m := range c.Members {
		out[i] = m.Hex()
	}
	return out
}

// Message is a persisted message document. Attachment messages have empty
// content; text messages have no attachments.
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Content     string             `bson:"content" json:"content"`
	Attachments []Attachment       `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Sender      primitive.ObjectID `bson:"sender" json:"sender"`
	Chat        primitive.ObjectID `bson:"chat" json:"chat"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// Friend request status values.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
)

// FriendRequest is a pending friendship document between two accounts.
type FriendRequest struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Status    string             `bson:"status" json:"status"`
	Sender    primitive.ObjectID `bson:"sender" json:"sender"`
	Receiver  primitive.ObjectID `bson:"receiver" json:"receiver"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
