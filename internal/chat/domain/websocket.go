package domain

// Action websocket request action
type Action string

const (
	// CreateRoom websocket action create_room
	CreateRoom Action = "create_room"
	// JoinRoom websocket action join_room
	JoinRoom Action = "join_room"
	// ExitRoom websocket action exit_room
	ExitRoom Action = "exit_room"
	// ListRooms websocket action list_rooms, rooms the member belongs to
	ListRooms Action = "list_rooms"

	// EnterRoom websocket action enter_room, opens a sync session
	EnterRoom Action = "enter_room"
	// LeaveRoom websocket action leave_room, closes the sync session
	LeaveRoom Action = "leave_room"

	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// ReadMessage websocket action read_message
	ReadMessage Action = "read_message"
	// LoadOlder websocket action load_older (scroll back)
	LoadOlder Action = "load_older"

	// GetUnread websocket action get_unread
	GetUnread Action = "get_unread"

	// SyncRoom server push action carrying a snapshot
	SyncRoom Action = "sync"
)

// WSRequest websocket Request
type WSRequest struct {
	Action   string   `json:"action"`
	RoomName string   `json:"room_name"`
	Members  []string `json:"members"`
	RoomID   string   `json:"room_id"`
	Content  string   `json:"content"`
	// Position read_message 的絕對位置
	Position int64 `json:"position"`
	// Count load_older 要多載入的筆數
	Count int `json:"count"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
