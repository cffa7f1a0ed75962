package api

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/parley/chat-app/internal/protocol"
	"github.com/parley/chat-app/internal/store"
)

// messagePageSize is the fixed page size for chat history.
const messagePageSize = 20

// maxGroupMembers caps group chat membership.
const maxGroupMembers = 100

// maxAttachmentFiles caps the number of files in one attachment message.
const maxAttachmentFiles = 5

type newGroupChatReq struct {
	Name    string   `json:"name" binding:"required"`
	Members []string `json:"members" binding:"required"`
}

type addMembersReq struct {
	ChatID  string   `json:"chatId" binding:"required"`
	Members []string `json:"members" binding:"required"`
}

type removeMemberReq struct {
	ChatID string `json:"chatId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

type renameChatReq struct {
	Name string `json:"name" binding:"required"`
}

// chatView is the transformed chat shape the client renders in its chat
// list: a group shows its own name and up to three member avatars, a direct
// chat borrows the other member's name and avatar.
type chatView struct {
	ID        string   `json:"_id"`
	GroupChat bool     `json:"groupChat"`
	Name      string   `json:"name"`
	Avatar    []string `json:"avatar"`
	Members   []string `json:"members"`
}

// messageView is a history message with the sender populated.
type messageView struct {
	ID          string             `json:"_id"`
	Content     string             `json:"content"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
	Sender      briefUser          `json:"sender"`
	ChatID      string             `json:"chat"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// handleNewGroupChat creates a group with the caller as creator. The caller
// counts on top of the posted members, so the group starts with at least
// three people.
func (s *Server) handleNewGroupChat(c *gin.Context) {
	var req newGroupChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "name and members are required")
		return
	}
	if len(req.Members) < 2 {
		fail(c, http.StatusBadRequest, "at least two members are required")
		return
	}

	me := currentUserID(c)
	members := []primitive.ObjectID{me}
	for _, hex := range req.Members {
		id, ok := parseObjectID(c, hex, "member id")
		if !ok {
			return
		}
		members = append(members, id)
	}

	chat, err := s.chats.Create(c.Request.Context(), store.Chat{
		Name:      req.Name,
		GroupChat: true,
		Creator:   me,
		Members:   members,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventAlert, fmt.Sprintf("welcome to %s group", req.Name))
	s.fanout.Deliver(req.Members, protocol.EventRefetchChats, nil)
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "group created successfully"})
}

// handleMyChats lists every chat the caller belongs to, transformed for the
// chat list view.
func (s *Server) handleMyChats(c *gin.Context) {
	ctx := c.Request.Context()
	me := currentUserID(c)

	chats, err := s.chats.ListByMember(ctx, me)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	var memberIDs []primitive.ObjectID
	for _, chat := range chats {
		memberIDs = append(memberIDs, chat.Members...)
	}
	index, err := s.userIndex(ctx, memberIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		view := chatView{
			ID:        chat.ID.Hex(),
			GroupChat: chat.GroupChat,
			Name:      chat.Name,
			Members:   make([]string, 0, len(chat.Members)),
		}
		for _, m := range chat.Members {
			if m != me {
				view.Members = append(view.Members, m.Hex())
			}
		}
		if chat.GroupChat {
			for _, m := range chat.Members[:min(3, len(chat.Members))] {
				view.Avatar = append(view.Avatar, index[m].Avatar.URL)
			}
		} else {
			for _, m := range chat.Members {
				if m != me {
					other := index[m]
					view.Name = other.Name
					view.Avatar = []string{other.Avatar.URL}
					break
				}
			}
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "chat fetched successfully",
		"chats":   views,
	})
}

// handleMyGroups lists the groups the caller created.
func (s *Server) handleMyGroups(c *gin.Context) {
	ctx := c.Request.Context()

	chats, err := s.chats.ListGroupsByCreator(ctx, currentUserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	var memberIDs []primitive.ObjectID
	for _, chat := range chats {
		memberIDs = append(memberIDs, chat.Members[:min(3, len(chat.Members))]...)
	}
	index, err := s.userIndex(ctx, memberIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	groups := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		view := chatView{ID: chat.ID.Hex(), GroupChat: true, Name: chat.Name, Members: chat.MemberHexIDs()}
		for _, m := range chat.Members[:min(3, len(chat.Members))] {
			view.Avatar = append(view.Avatar, index[m].Avatar.URL)
		}
		groups = append(groups, view)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "groups": groups})
}

// handleAddMembers adds users to a group. Creator only; members already in
// the group are skipped silently.
func (s *Server) handleAddMembers(c *gin.Context) {
	var req addMembersReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Members) < 1 {
		fail(c, http.StatusBadRequest, "please provide members")
		return
	}
	chatID, ok := parseObjectID(c, req.ChatID, "chatId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, groupOK := s.groupForCreator(c, chatID)
	if !groupOK {
		return
	}

	newIDs := make([]primitive.ObjectID, 0, len(req.Members))
	for _, hex := range req.Members {
		id, ok := parseObjectID(c, hex, "member id")
		if !ok {
			return
		}
		if !chat.HasMember(id) {
			newIDs = append(newIDs, id)
		}
	}

	newMembers, err := s.users.GetMany(ctx, newIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	for _, u := range newMembers {
		chat.Members = append(chat.Members, u.ID)
	}
	if len(chat.Members) > maxGroupMembers {
		fail(c, http.StatusBadRequest, "members limit reached")
		return
	}

	if err := s.chats.Update(ctx, chat); err != nil {
		failStore(c, err, "chat not found")
		return
	}

	names := make([]string, 0, len(newMembers))
	for _, u := range newMembers {
		names = append(names, u.Name)
	}
	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventAlert,
		fmt.Sprintf("%s added to the group", strings.Join(names, ", ")))
	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventRefetchChats, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "members added successfully"})
}

// handleRemoveMember removes one user from a group. Creator only, and the
// group must keep at least three members.
func (s *Server) handleRemoveMember(c *gin.Context) {
	var req removeMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "chatId and userId are required")
		return
	}
	chatID, ok := parseObjectID(c, req.ChatID, "chatId")
	if !ok {
		return
	}
	userID, ok := parseObjectID(c, req.UserID, "userId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, groupOK := s.groupForCreator(c, chatID)
	if !groupOK {
		return
	}
	if len(chat.Members) <= 3 {
		fail(c, http.StatusBadRequest, "group must have at least 3 members")
		return
	}

	removed, err := s.users.Get(ctx, userID)
	if err != nil {
		failStore(c, err, "user not found")
		return
	}

	// Everyone who was a member, including the removed user, refetches.
	before := chat.MemberHexIDs()
	chat.Members = withoutMember(chat.Members, userID)
	if err := s.chats.Update(ctx, chat); err != nil {
		failStore(c, err, "chat not found")
		return
	}

	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventAlert, gin.H{
		"chatId":  chat.ID.Hex(),
		"message": fmt.Sprintf("%s removed from the group", removed.Name),
	})
	s.fanout.Deliver(before, protocol.EventRefetchChats, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "member removed successfully"})
}

// handleLeaveGroup removes the caller from a group. A departing creator
// hands the group to a random remaining member.
func (s *Server) handleLeaveGroup(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.Param("id"), "chat id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return
	}
	if !chat.GroupChat {
		fail(c, http.StatusNotFound, "this is not a group chat")
		return
	}

	me := currentUserID(c)
	remaining := withoutMember(chat.Members, me)
	if chat.Creator == me && len(remaining) > 0 {
		chat.Creator = remaining[rand.Intn(len(remaining))]
	}
	chat.Members = remaining

	user, err := s.users.Get(ctx, me)
	if err != nil {
		failStore(c, err, "user not found")
		return
	}
	if err := s.chats.Update(ctx, chat); err != nil {
		failStore(c, err, "chat not found")
		return
	}

	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventAlert, gin.H{
		"chatId":  chat.ID.Hex(),
		"message": fmt.Sprintf("user %s left the group", user.Name),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("user %s left the group", user.Name)})
}

// handleSendAttachment stores the uploaded files, persists an attachment
// message, and broadcasts it to the chat members.
func (s *Server) handleSendAttachment(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.PostForm("chatId"), "chatId")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "please provide attachment")
		return
	}
	uploads := form.File["files"]
	if len(uploads) < 1 {
		fail(c, http.StatusBadRequest, "please provide attachment")
		return
	}
	if len(uploads) > maxAttachmentFiles {
		fail(c, http.StatusBadRequest, "max 5 files allowed")
		return
	}

	ctx := c.Request.Context()
	me := currentUserID(c)
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return
	}
	sender, err := s.users.Get(ctx, me)
	if err != nil {
		failStore(c, err, "user not found")
		return
	}

	attachments := make([]store.Attachment, 0, len(uploads))
	for _, header := range uploads {
		file, err := header.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "unreadable attachment upload")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			fail(c, http.StatusBadRequest, "unreadable attachment upload")
			return
		}
		stored, err := s.storage.Save(ctx, data)
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to store attachment")
			return
		}
		attachments = append(attachments, store.Attachment{PublicID: stored.PublicID, URL: stored.URL})
	}

	msg, err := s.messages.Create(ctx, store.Message{
		Attachments: attachments,
		Sender:      me,
		Chat:        chatID,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	refs := make([]protocol.AttachmentRef, len(attachments))
	for i, a := range attachments {
		refs[i] = protocol.AttachmentRef{PublicID: a.PublicID, URL: a.URL}
	}
	members := chat.MemberHexIDs()
	s.fanout.Deliver(members, protocol.EventNewMessage, protocol.NewMessagePayload{
		ChatID: chatID.Hex(),
		Message: protocol.RealtimeMessage{
			ID:          msg.ID.Hex(),
			Attachments: refs,
			Sender:      protocol.MessageSender{ID: me.Hex(), Name: sender.Name},
			ChatID:      chatID.Hex(),
			CreatedAt:   msg.CreatedAt.Format(time.RFC3339),
		},
	})
	s.fanout.Deliver(members, protocol.EventNewMessageAlert, protocol.ChatAlertPayload{ChatID: chatID.Hex()})

	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// handleGetMessages returns one page of a chat's history, oldest first
// within the page. Only members may read it.
func (s *Server) handleGetMessages(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.Param("id"), "chat id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	ctx := c.Request.Context()
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return
	}
	if !chat.HasMember(currentUserID(c)) {
		fail(c, http.StatusForbidden, "you are not allowed to access this chat")
		return
	}

	messages, total, err := s.messages.ListByChat(ctx, chatID, page, messagePageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	senderIDs := make([]primitive.ObjectID, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.Sender)
	}
	index, err := s.userIndex(ctx, senderIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:          m.ID.Hex(),
			Content:     m.Content,
			Attachments: m.Attachments,
			Sender:      briefUser{ID: m.Sender.Hex(), Name: index[m.Sender].Name},
			ChatID:      m.Chat.Hex(),
			CreatedAt:   m.CreatedAt,
		})
	}

	totalPages := (total + messagePageSize - 1) / messagePageSize
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"messages":          views,
		"totalMessageCount": total,
		"totalPage":         totalPages,
	})
}

// handleGetChat returns one chat. With ?populate=true the member ids are
// expanded to name and avatar.
func (s *Server) handleGetChat(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.Param("id"), "chat id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return
	}

	if c.Query("populate") != "true" {
		c.JSON(http.StatusOK, gin.H{"success": true, "chat": chat})
		return
	}

	index, err := s.userIndex(ctx, chat.Members)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	members := make([]briefUser, 0, len(chat.Members))
	for _, m := range chat.Members {
		u := index[m]
		members = append(members, briefUser{ID: m.Hex(), Name: u.Name, Avatar: u.Avatar.URL})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": gin.H{
		"_id":       chat.ID.Hex(),
		"name":      chat.Name,
		"groupChat": chat.GroupChat,
		"creator":   chat.Creator.Hex(),
		"members":   members,
		"createdAt": chat.CreatedAt,
		"updatedAt": chat.UpdatedAt,
	}})
}

// handleRenameChat renames a group. Creator only.
func (s *Server) handleRenameChat(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.Param("id"), "chat id")
	if !ok {
		return
	}
	var req renameChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}

	chat, groupOK := s.groupForCreator(c, chatID)
	if !groupOK {
		return
	}

	chat.Name = req.Name
	if err := s.chats.Update(c.Request.Context(), chat); err != nil {
		failStore(c, err, "chat not found")
		return
	}

	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventRefetchChats, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "chat renamed successfully"})
}

// handleDeleteChat deletes a chat with its messages and stored attachment
// files. Groups may only be deleted by their creator, direct chats by
// either member.
func (s *Server) handleDeleteChat(c *gin.Context) {
	chatID, ok := parseObjectID(c, c.Param("id"), "chat id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return
	}

	me := currentUserID(c)
	if chat.GroupChat && chat.Creator != me {
		fail(c, http.StatusForbidden, "you are not allowed to delete the group")
		return
	}
	if !chat.GroupChat && !chat.HasMember(me) {
		fail(c, http.StatusForbidden, "you are not allowed to delete the chat")
		return
	}

	attachments, err := s.messages.ListAttachments(ctx, chatID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	publicIDs := make([]string, 0, len(attachments))
	for _, a := range attachments {
		publicIDs = append(publicIDs, a.PublicID)
	}

	if err := s.storage.Delete(ctx, publicIDs); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.messages.DeleteByChat(ctx, chatID); err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.chats.Delete(ctx, chatID); err != nil {
		failStore(c, err, "chat not found")
		return
	}

	s.fanout.Deliver(chat.MemberHexIDs(), protocol.EventRefetchChats, nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "chat deleted successfully"})
}

// groupForCreator loads a chat and checks it is a group administered by the
// caller. On failure the request is already answered.
func (s *Server) groupForCreator(c *gin.Context, chatID primitive.ObjectID) (store.Chat, bool) {
	chat, err := s.chats.Get(c.Request.Context(), chatID)
	if err != nil {
		failStore(c, err, "chat not found")
		return store.Chat{}, false
	}
	if !chat.GroupChat {
		fail(c, http.StatusNotFound, "this is not a group chat")
		return store.Chat{}, false
	}
	if chat.Creator != currentUserID(c) {
		fail(c, http.StatusForbidden, "only the group creator can do this")
		return store.Chat{}, false
	}
	return chat, true
}

// withoutMember returns members with one user filtered out.
func withoutMember(members []primitive.ObjectID, userID primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(members))
	for _, m := range members {
		if m != userID {
			out = append(out, m)
		}
	}
	return out
}
