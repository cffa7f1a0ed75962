package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/parley/chat-app/internal/auth"
	"github.com/parley/chat-app/internal/store"
)

// ctxUserID is the gin context key holding the authenticated user's id.
const ctxUserID = "userID"

// requireAuth verifies the user-token cookie and stores the caller's id in
// the request context. Requests without a valid token are rejected before
// any handler runs.
func (s *Server) requireAuth(c *gin.Context) {
	cookie, err := c.Cookie(auth.CookieName)
	if err != nil {
		fail(c, http.StatusUnauthorized, "please login first")
		return
	}

	userID, err := s.tokens.Verify(cookie)
	if err != nil {
		fail(c, http.StatusUnauthorized, "please login first")
		return
	}

	c.Set(ctxUserID, userID)
	c.Next()
}

// currentUserID returns the authenticated caller's id as an ObjectID.
func currentUserID(c *gin.Context) primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(c.GetString(ctxUserID))
	return id
}

// fail aborts the request with the standard error envelope.
func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// failStore maps store errors onto HTTP statuses: a missing document is the
// caller's mistake, everything else is ours.
func failStore(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, store.ErrDuplicate):
		fail(c, http.StatusBadRequest, "duplicate entry")
	default:
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}

// parseObjectID converts a client-supplied hex id, rejecting the request on
// bad input.
func parseObjectID(c *gin.Context, hex, field string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+field)
		return primitive.NilObjectID, false
	}
	return oid, true
}
