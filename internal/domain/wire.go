package domain

// Frame types from client.
const (
	FrameLogin      = "login"
	FrameRegister   = "register"
	FrameLogout     = "logout"
	FrameJoin       = "join"
	FrameLeave      = "leave"
	FrameCreateRoom = "create_room"
	FrameDeleteRoom = "delete_room"
	FrameSend       = "send"
	FrameHistory    = "history"
	FramePing       = "ping"
)

// Frame types to client.
const (
	FrameLoginResult   = "login_result"
	FrameRegistered    = "registered"
	FrameMessage       = "message"
	FrameRoomCreated   = "room_created"
	FrameRoomJoined    = "room_joined"
	FrameRoomLeft      = "room_left"
	FrameRoomDeleted   = "room_deleted"
	FrameHistoryResult = "history_result"
	FrameError         = "error"
	FramePong          = "pong"
	FrameDisconnect    = "disconnect"
)

// BaseFrame is decoded first to pick the concrete frame type. Unknown
// fields in concrete frames are ignored for forward compatibility.
type BaseFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Client -> server frames.

type LoginFrame struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// Token, when set, replaces the username/password pair.
	Token string `json:"token,omitempty"`
}

type RegisterFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type JoinFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type LeaveFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type CreateRoomFrame struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"` // defaults to group
}

type DeleteRoomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type SendFrame struct {
	Type string `json:"type"`
	// Exactly one of RoomID and PeerID must be set.
	RoomID string `json:"room_id,omitempty"`
	PeerID string `json:"peer_id,omitempty"`
	Body   string `json:"body"`
	Kind   string `json:"kind,omitempty"` // text or file
}

type HistoryFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	Limit    int    `json:"limit,omitempty"`
	BeforeID string `json:"before_id,omitempty"`
}

// Server -> client frames.

type LoginResultFrame struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
	RoomID   string `json:"room_id,omitempty"` // default room joined at login
	Message  string `json:"message,omitempty"`
}

type RegisteredFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type MessageFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	SenderID  string `json:"sender_id"`
	RoomID    string `json:"room_id"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

type RoomCreatedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

type RoomJoinedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

type RoomLeftFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type RoomDeletedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	// Members are moved back to this room.
	DefaultRoomID string `json:"default_room_id"`
}

type HistoryResultFrame struct {
	Type     string         `json:"type"`
	RoomID   string         `json:"room_id"`
	Messages []MessageFrame `json:"messages"`
	HasMore  bool           `json:"has_more"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DisconnectFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// NewErrorFrame builds an error frame from a core error.
func NewErrorFrame(err error) *ErrorFrame {
	return &ErrorFrame{
		Type:    FrameError,
		Code:    ErrorCode(err),
		Message: err.Error(),
	}
}

// NewMessageFrame converts a persisted message into its wire form.
func NewMessageFrame(m *Message) *MessageFrame {
	return &MessageFrame{
		Type:      FrameMessage,
		MessageID: m.ID,
		Sender:    m.SenderName,
		SenderID:  m.SenderID,
		RoomID:    m.RoomID,
		Kind:      string(m.Type),
		Body:      m.Body,
		Timestamp: m.CreatedAt.Unix(),
	}
}
