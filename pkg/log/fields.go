package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldConnID    = "conn_id"
	FieldRoomID    = "room_id"
	FieldRoomName  = "room_name"
	FieldMessageID = "message_id"
	FieldRemote    = "remote_addr"
	FieldReason    = "reason"

	// Service
	FieldService = "service"
)
