package domain

import "errors"

// Error taxonomy of the chat core. Each sentinel maps to a wire error
// code; callers match with errors.Is and translate at the edge.
var (
	ErrCapacityExceeded = errors.New("connection capacity exceeded")
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrDuplicateSession = errors.New("identity already has a live session")
	ErrProtocol         = errors.New("malformed frame")
	ErrRoomNotFound     = errors.New("room not found")
	ErrDuplicateName    = errors.New("room name already taken")
	ErrNotMember        = errors.New("not a member of the room")
	ErrRoomFull         = errors.New("room is full")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidContent   = errors.New("invalid message content")
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateUser    = errors.New("username already taken")
)

// Wire error codes carried in error frames.
const (
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeProtocolError    = "PROTOCOL_ERROR"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeDuplicateName    = "DUPLICATE_NAME"
	CodeNotMember        = "NOT_MEMBER"
	CodeRoomFull         = "ROOM_FULL"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidContent   = "INVALID_CONTENT"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeDuplicateUser    = "DUPLICATE_USER"
	CodeInternalError    = "INTERNAL_ERROR"
)

// ErrorCode maps a core error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrAuthentication):
		return CodeAuthFailed
	case errors.Is(err, ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, ErrProtocol):
		return CodeProtocolError
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrDuplicateName):
		return CodeDuplicateName
	case errors.Is(err, ErrNotMember):
		return CodeNotMember
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrInvalidContent):
		return CodeInvalidContent
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrDuplicateUser):
		return CodeDuplicateUser
	default:
		return CodeInternalError
	}
}
