package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/parley/chat-app/internal/auth"
	"github.com/parley/chat-app/internal/protocol"
	"github.com/parley/chat-app/internal/store"
)

// cookieMaxAge keeps the login cookie for 15 days, matching the token TTL
// default.
const cookieMaxAge = 15 * 24 * 60 * 60

// maxAvatarBytes caps avatar uploads at 5 MiB.
const maxAvatarBytes = 5 << 20

type loginReq struct {
	UserName string `json:"userName" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sendRequestReq struct {
	UserID string `json:"userId" binding:"required"`
}

type acceptRequestReq struct {
	RequestID string `json:"requestId" binding:"required"`
	Accept    bool   `json:"accept"`
}

// briefUser is the reduced account shape returned in listings.
type briefUser struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// setAuthCookie issues a token for the user and attaches it as the
// user-token cookie.
func (s *Server) setAuthCookie(c *gin.Context, userID string) error {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.CookieName, token, cookieMaxAge, "/", "", s.secure, true)
	return nil
}

// handleRegister creates an account from a multipart form with an avatar
// file and logs the new user in.
func (s *Server) handleRegister(c *gin.Context) {
	name := c.PostForm("name")
	userName := c.PostForm("userName")
	password := c.PostForm("password")
	bio := c.PostForm("bio")
	if name == "" || userName == "" || password == "" {
		fail(c, http.StatusBadRequest, "name, userName and password are required")
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		fail(c, http.StatusBadRequest, "please upload avatar")
		return
	}
	if fileHeader.Size > maxAvatarBytes {
		fail(c, http.StatusBadRequest, "avatar too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable avatar upload")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable avatar upload")
		return
	}

	stored, err := s.storage.Save(c.Request.Context(), data)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := s.users.Create(c.Request.Context(), store.User{
		Name:     name,
		UserName: userName,
		Password: hash,
		Bio:      bio,
		Avatar:   store.Attachment{PublicID: stored.PublicID, URL: stored.URL},
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			fail(c, http.StatusBadRequest, "username already taken")
			return
		}
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.setAuthCookie(c, user.ID.Hex()); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user,
		"message": "user created successfully",
	})
}

// handleLogin checks credentials and issues the auth cookie. Attempts are
// throttled per client address.
func (s *Server) handleLogin(c *gin.Context) {
	if s.limiter != nil && !s.limiter.AllowLogin(c.Request.Context(), c.ClientIP()) {
		fail(c, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "userName and password are required")
		return
	}

	user, err := s.users.GetByUserName(c.Request.Context(), req.UserName)
	if err != nil || !auth.CheckPassword(user.Password, req.Password) {
		// Same answer for unknown user and wrong password.
		fail(c, http.StatusNotFound, "invalid credentials")
		return
	}

	if err := s.setAuthCookie(c, user.ID.Hex()); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
		"message": fmt.Sprintf("welcome back %s", user.Name),
	})
}

// handleProfile returns the caller's account.
func (s *Server) handleProfile(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		failStore(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", s.secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out successfully"})
}

// handleSearchUsers finds accounts by display name, excluding the caller
// and everyone they already share a direct chat with.
func (s *Server) handleSearchUsers(c *gin.Context) {
	me := currentUserID(c)
	name := c.Query("name")

	chats, err := s.chats.ListDirectByMember(c.Request.Context(), me)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	exclude := []primitive.ObjectID{me}
	for _, chat := range chats {
		exclude = append(exclude, chat.Members...)
	}

	users, err := s.users.Search(c.Request.Context(), name, exclude)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]briefUser, 0, len(users))
	for _, u := range users {
		out = append(out, briefUser{ID: u.ID.Hex(), Name: u.Name, Avatar: u.Avatar.URL})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": out})
}

// handleSendRequest creates a friend request and notifies the receiver in
// realtime.
func (s *Server) handleSendRequest(c *gin.Context) {
	var req sendRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "userId is required")
		return
	}
	receiver, ok := parseObjectID(c, req.UserID, "userId")
	if !ok {
		return
	}
	me := currentUserID(c)

	if _, err := s.requests.FindPendingBetween(c.Request.Context(), me, receiver); err == nil {
		fail(c, http.StatusBadRequest, "request already sent")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := s.requests.Create(c.Request.Context(), me, receiver); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	s.fanout.Deliver([]string{receiver.Hex()}, protocol.EventNewRequest, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "request sent successfully"})
}

// handleAcceptRequest accepts or rejects a friend request addressed to the
// caller. Accepting creates the direct chat and tells both sides to refetch.
func (s *Server) handleAcceptRequest(c *gin.Context) {
	var req acceptRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "requestId is required")
		return
	}
	requestID, ok := parseObjectID(c, req.RequestID, "requestId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		failStore(c, err, "request not found")
		return
	}

	me := currentUserID(c)
	if request.Receiver != me {
		fail(c, http.StatusUnauthorized, "you are not authorized to perform this action")
		return
	}

	if !req.Accept {
		if err := s.requests.Delete(ctx, request.ID); err != nil {
			fail(c, http.StatusInternalServerError, "internal server error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "request rejected"})
		return
	}

	members := []primitive.ObjectID{request.Sender, request.Receiver}
	index, err := s.userIndex(ctx, members)
	if err != nil || len(index) != 2 {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := s.chats.Create(ctx, store.Chat{
		Name:    fmt.Sprintf("%s - %s", index[request.Sender].Name, index[request.Receiver].Name),
		Members: members,
	}); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.requests.Delete(ctx, request.ID); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	s.fanout.Deliver(hexIDs(members), protocol.EventRefetchChats, nil)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "request accepted",
		"sender":  request.Sender.Hex(),
	})
}

// handleListRequests returns the pending requests addressed to the caller,
// with sender identity attached.
func (s *Server) handleListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	requests, err := s.requests.ListByReceiver(ctx, currentUserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	senderIDs := make([]primitive.ObjectID, 0, len(requests))
	for _, r := range requests {
		senderIDs = append(senderIDs, r.Sender)
	}
	senders, err := s.userIndex(ctx, senderIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	type requestView struct {
		ID     string    `json:"_id"`
		Sender briefUser `json:"sender"`
	}
	out := make([]requestView, 0, len(requests))
	for _, r := range requests {
		sender := senders[r.Sender]
		out = append(out, requestView{
			ID:     r.ID.Hex(),
			Sender: briefUser{ID: r.Sender.Hex(), Name: sender.Name, Avatar: sender.Avatar.URL},
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "allRequest": out})
}

// handleMyFriends lists everyone the caller shares a direct chat with.
// With ?chatId= it returns only the friends not already in that chat, for
// the add-members picker.
func (s *Server) handleMyFriends(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUserID(c)

	chats, err := s.chats.ListDirectByMember(ctx, me)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	friendIDs := make([]primitive.ObjectID, 0, len(chats))
	for _, chat := range chats {
		for _, m := range chat.Members {
			if m != me {
				friendIDs = append(friendIDs, m)
			}
		}
	}
	index, err := s.userIndex(ctx, friendIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	var inChat map[primitive.ObjectID]bool
	if chatHex := c.Query("chatId"); chatHex != "" {
		chatID, ok := parseObjectID(c, chatHex, "chatId")
		if !ok {
			return
		}
		chat, err := s.chats.Get(ctx, chatID)
		if err != nil {
			failStore(c, err, "chat not found")
			return
		}
		inChat = make(map[primitive.ObjectID]bool, len(chat.Members))
		for _, m := range chat.Members {
			inChat[m] = true
		}
	}

	friends := make([]briefUser, 0, len(friendIDs))
	for _, id := range friendIDs {
		if inChat != nil && inChat[id] {
			continue
		}
		u := index[id]
		friends = append(friends, briefUser{ID: id.Hex(), Name: u.Name, Avatar: u.Avatar.URL})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "friends": friends})
}

// userIndex fetches the given accounts and indexes them by id.
func (s *Server) userIndex(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]store.User, error) {
	index := make(map[primitive.ObjectID]store.User, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		index[u.ID] = u
	}
	return index, nil
}

// hexIDs converts ObjectIDs to the hex form the realtime layer uses.
func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}
