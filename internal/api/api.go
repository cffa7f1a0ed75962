// Package api exposes the REST surface: accounts, friend requests, chats,
// messages, and attachments. Handlers push realtime notifications through
// the same fanout engine the socket layer uses.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley/chat-app/internal/auth"
	"github.com/parley/chat-app/internal/files"
	"github.com/parley/chat-app/internal/metrics"
	"github.com/parley/chat-app/internal/realtime"
	"github.com/parley/chat-app/internal/store"
)

// LoginLimiter throttles login attempts per client address. Implementations
// fail open.
type LoginLimiter interface {
	AllowLogin(ctx context.Context, addr string) bool
}

// Server bundles the REST handlers and their collaborators.
type Server struct {
	users    *store.UserStore
	chats    *store.ChatStore
	messages *store.MessageStore
	requests *store.RequestStore
	tokens   *auth.TokenManager
	storage  files.Storage
	fanout   *realtime.Fanout
	limiter  LoginLimiter // nil disables login throttling
	secure   bool         // mark auth cookies Secure
}

// NewServer wires a Server. limiter may be nil.
func NewServer(
	users *store.UserStore,
	chats *store.ChatStore,
	messages *store.MessageStore,
	requests *store.RequestStore,
	tokens *auth.TokenManager,
	storage files.Storage,
	fanout *realtime.Fanout,
	limiter LoginLimiter,
	secure bool,
) *Server {
	return &Server{
		users:    users,
		chats:    chats,
		messages: messages,
		requests: requests,
		tokens:   tokens,
		storage:  storage,
		fanout:   fanout,
		limiter:  limiter,
		secure:   secure,
	}
}

// Register mounts all REST routes on the router.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	user := r.Group("/api/v1/user")
	{
		user.POST("/register", s.handleRegister)
		user.POST("/login", s.handleLogin)

		authed := user.Group("", s.requireAuth)
		authed.GET("/user", s.handleProfile)
		authed.GET("/logout", s.handleLogout)
		authed.GET("/search", s.handleSearchUsers)
		authed.PUT("/send-request", s.handleSendRequest)
		authed.PUT("/accept-request", s.handleAcceptRequest)
		authed.GET("/all-requests", s.handleListRequests)
		authed.GET("/get-my-friends", s.handleMyFriends)
	}

	chat := r.Group("/api/v1/chat", s.requireAuth)
	{
		chat.POST("/new-group-chat", s.handleNewGroupChat)
		chat.GET("/get-my-chat", s.handleMyChats)
		chat.GET("/get-my-groups", s.handleMyGroups)
		chat.PUT("/add-members", s.handleAddMembers)
		chat.PUT("/remove-member", s.handleRemoveMember)
		chat.DELETE("/leave/:id", s.handleLeaveGroup)
		chat.POST("/message", s.handleSendAttachment)
		chat.GET("/message/:id", s.handleGetMessages)
		chat.GET("/:id", s.handleGetChat)
		chat.PUT("/:id", s.handleRenameChat)
		chat.DELETE("/:id", s.handleDeleteChat)
	}
}

// handleHealth reports liveness for load balancer checks.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
