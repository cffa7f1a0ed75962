package store

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChatHasMember(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	chat := Chat{Members: []primitive.ObjectID{a, b}}

	if !chat.HasMember(a) || !chat.HasMember(b) {
		t.Error("expected both members to be reported present")
	}
	if chat.HasMember(stranger) {
		t.Error("expected non-member to be reported absent")
	}
}

func TestChatMemberHexIDs(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	chat := Chat{Members: []primitive.ObjectID{a, b}}

	hex := chat.MemberHexIDs()
	if len(hex) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(hex))
	}
	if hex[0] != a.Hex() || hex[1] != b.Hex() {
		t.Errorf("hex ids do not match member order: %v", hex)
	}
}
