package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/engine"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const pingInterval = 10 * time.Minute

// ChatWebsocketHandler 可包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	roomUC    *RoomUseCase
	messageUC *SendMessageUseCase
	sessions  *engine.Manager
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	roomUC *RoomUseCase,
	messageUC *SendMessageUseCase,
	sessions *engine.Manager,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomUC:    roomUC,
		messageUC: messageUC,
		sessions:  sessions,
	}
}

// wsClient one websocket connection and the rooms it has entered
type wsClient struct {
	conn     *websocket.Conn
	memberID string

	writeMu sync.Mutex
	mu      sync.Mutex
	rooms   map[string]*engine.Session
}

func (c *wsClient) session(roomID string) (*engine.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.rooms[roomID]
	return s, ok
}

func (c *wsClient) write(mt int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(mt, data)
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	logger.Log.Info("websocket handle memberID", zap.String("userID", memberID))

	client := &wsClient{conn: conn, memberID: memberID, rooms: make(map[string]*engine.Session)}
	ticker := time.NewTicker(pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		cancel()
		h.leaveAll(client)
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
	}()

	//client發出close, fiber會在 read msg 回傳 err
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket closed by client", zap.Int("code", code), zap.String("userID", memberID))
		return nil
	})

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := client.write(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Error("ping error", zap.String("userID", memberID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("Connection closed", zap.Error(err))
			} else {
				//直接斷線 1006
				logger.Log.Error("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			h.sendError(client, "unsupported message type")
			continue
		}
		h.textMessageAction(ctxClose, client, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, client *wsClient, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.sendError(client, "invalid request")
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	var err error

	switch domain.Action(req.Action) {
	//建立聊天室
	case domain.CreateRoom:
		var conv *domain.Conversation
		conv, err = h.roomUC.CreateConversation(ctx, req.RoomName, client.memberID, req.Members)
		if err == nil {
			resp.Payload["room_id"] = conv.ID
		}

	//加入聊天室
	case domain.JoinRoom:
		err = h.roomUC.JoinConversation(ctx, req.RoomID, client.memberID)

	//離開聊天室（成員資格）
	case domain.ExitRoom:
		h.leave(client, req.RoomID)
		err = h.roomUC.ExitConversation(ctx, req.RoomID, client.memberID)

	//列出自己的聊天室
	case domain.ListRooms:
		var convs []*domain.Conversation
		convs, err = h.roomUC.ListConversations(ctx, client.memberID)
		if err == nil {
			resp.Payload["rooms"] = roomSummaries(convs)
		}

	//進入聊天室，開始同步
	case domain.EnterRoom:
		var s *engine.Session
		s, err = h.enter(ctx, client, req.RoomID)
		if err == nil {
			resp.Payload["session_id"] = s.ID()
		}

	//離開聊天室畫面
	case domain.LeaveRoom:
		if !h.leave(client, req.RoomID) {
			err = errprocess.ErrSessionNotFound
		}
		resp.Payload["leave_room"] = req.RoomID

	case domain.SendMessage:
		s, ok := client.session(req.RoomID)
		if !ok {
			err = errprocess.ErrSessionNotFound
			break
		}
		var m domain.Message
		m, err = s.Send(ctx, req.Content)
		if err == nil {
			resp.Payload["message_id"] = m.ID
		}

	//已讀到 position
	case domain.ReadMessage:
		s, ok := client.session(req.RoomID)
		if !ok {
			err = errprocess.ErrSessionNotFound
			break
		}
		err = s.MarkRead(ctx, req.Position)

	//往前載入更多歷史
	case domain.LoadOlder:
		s, ok := client.session(req.RoomID)
		if !ok {
			err = errprocess.ErrSessionNotFound
			break
		}
		var n int
		n, err = s.LoadOlder(ctx, req.Count)
		resp.Payload["loaded"] = n

	//所有聊天室的未讀數
	case domain.GetUnread:
		var infos []domain.RoomUnreadInfo
		infos, err = h.messageUC.GetCountUnreadMessages(ctx, client.memberID)
		for _, unread := range infos {
			resp.Payload[unread.RoomID] = unread.UnreadCount
		}

	default:
		h.sendError(client, "unknown action")
		return
	}

	if err != nil {
		resp.Error = err.Error()
		resp.Payload["code"] = errprocess.CodeOf(err)
		logger.Log.Error("websocket err ", zap.String("MemberID", client.memberID), zap.String("Action", req.Action), zap.Error(err))
	} else {
		resp.Success = true
	}
	h.sendResponse(client, resp)
}

// roomSummaries id / name / length of each room for list_rooms
func roomSummaries(convs []*domain.Conversation) []map[string]interface{} {
	rooms := make([]map[string]interface{}, 0, len(convs))
	for _, c := range convs {
		rooms = append(rooms, map[string]interface{}{
			"room_id": c.ID,
			"name":    c.Name,
			"length":  c.MessageCount,
		})
	}
	return rooms
}

// enter open a sync session and forward its snapshots to the client
func (h *ChatWebsocketHandler) enter(ctx context.Context, client *wsClient, roomID string) (*engine.Session, error) {
	if s, ok := client.session(roomID); ok {
		return s, nil
	}
	if _, err := h.roomUC.CheckParticipant(ctx, roomID, client.memberID); err != nil {
		return nil, err
	}

	s, err := h.sessions.Open(ctx, roomID, client.memberID)
	if err != nil {
		return nil, err
	}

	client.mu.Lock()
	if existing, ok := client.rooms[roomID]; ok {
		client.mu.Unlock()
		s.Close()
		return existing, nil
	}
	client.rooms[roomID] = s
	client.mu.Unlock()

	go func() {
		for snap := range s.Updates() {
			h.sendResponse(client, domain.WSResponse{
				Action:  string(domain.SyncRoom),
				Success: true,
				Payload: map[string]interface{}{"snapshot": snap},
			})
		}
	}()
	return s, nil
}

func (h *ChatWebsocketHandler) leave(client *wsClient, roomID string) bool {
	client.mu.Lock()
	s, ok := client.rooms[roomID]
	delete(client.rooms, roomID)
	client.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (h *ChatWebsocketHandler) leaveAll(client *wsClient) {
	client.mu.Lock()
	rooms := client.rooms
	client.rooms = make(map[string]*engine.Session)
	client.mu.Unlock()
	for _, s := range rooms {
		s.Close()
	}
}

// sendResponse - 發送 JSON 給前端
func (h *ChatWebsocketHandler) sendResponse(client *wsClient, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response error", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	if err := client.write(websocket.TextMessage, b); err != nil {
		logger.Log.Error("write message error", zap.String("userID", client.memberID), zap.Error(err))
	}
}

func (h *ChatWebsocketHandler) sendError(client *wsClient, errorMsg string) {
	resp := domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	}
	h.sendResponse(client, resp)
}
