package protocol

// Event names shared by the realtime socket layer and the REST handlers.
// These strings are part of the wire contract with the web client and must
// not change.
const (
	// Client -> Server events.
	EventNewMessage  = "new-message"
	EventStartTyping = "start-typing"
	EventStopTyping  = "stop-typing"
	EventChatJoined  = "chat-joined"
	EventChatLeft    = "chat-left"
	EventPing        = "ping"

	// Server -> Client events.
	EventAlert           = "alert"
	EventRefetchChats    = "refetch-chats"
	EventNewMessageAlert = "new-message-alert"
	EventNewAttachment   = "new-attachment"
	EventNewRequest      = "new-request"
	EventOnlineUsers     = "online-users"
	EventError           = "error"
	EventPong            = "pong"
)
