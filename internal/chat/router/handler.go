package router

import (
	"errors"
	"fmt"
	"strconv"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck check service start
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag, POST /debug?status=true
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// HistoryHandler history collaborator over http
type HistoryHandler struct {
	historyUC *app.HistoryUseCase
	roomUC    *app.RoomUseCase
}

// NewHistoryHandler create HistoryHandler
func NewHistoryHandler(historyUC *app.HistoryUseCase, roomUC *app.RoomUseCase) *HistoryHandler {
	return &HistoryHandler{historyUC: historyUC, roomUC: roomUC}
}

// GetConversation GET /chatrooms/:id
func (h *HistoryHandler) GetConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.checkMember(c, id); err != nil {
		return writeError(c, err)
	}
	conv, err := h.historyUC.FetchConversation(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(conv)
}

// GetMessages GET /messages?chatRoomId=&start=&end=
func (h *HistoryHandler) GetMessages(c *fiber.Ctx) error {
	id := c.Query("chatRoomId")
	start, errStart := strconv.ParseInt(c.Query("start"), 10, 64)
	end, errEnd := strconv.ParseInt(c.Query("end"), 10, 64)
	if id == "" || errStart != nil || errEnd != nil || start < 0 {
		return writeError(c, errprocess.ErrInvalidRange)
	}
	if err := h.checkMember(c, id); err != nil {
		return writeError(c, err)
	}

	msgs, err := h.historyUC.FetchMessages(c.UserContext(), id, start, end)
	if errors.Is(err, errprocess.ErrRangeUnavailable) {
		return c.JSON([]domain.Message{})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msgs)
}

// GetReadPoints GET /points?chatRoomId=
func (h *HistoryHandler) GetReadPoints(c *fiber.Ctx) error {
	id := c.Query("chatRoomId")
	if id == "" {
		return writeError(c, errprocess.New(errprocess.CodeInvalidArgument, "chatRoomId is required"))
	}
	if err := h.checkMember(c, id); err != nil {
		return writeError(c, err)
	}
	points, err := h.historyUC.FetchReadPoints(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	if points == nil {
		points = []domain.ReadPoint{}
	}
	return c.JSON(points)
}

func (h *HistoryHandler) checkMember(c *fiber.Ctx, conversationID string) error {
	memberID, _ := c.Locals(middlewares.TokenMemberID).(string)
	_, err := h.roomUC.CheckParticipant(c.UserContext(), conversationID, memberID)
	return err
}

func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch errprocess.CodeOf(err) {
	case errprocess.CodeInvalidArgument:
		status = fiber.StatusBadRequest
	case errprocess.CodeNotFound:
		status = fiber.StatusNotFound
	case errprocess.CodePermissionDenied:
		status = fiber.StatusForbidden
	case errprocess.CodeUnavailable:
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		logger.Log.Error("history api error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"code":  errprocess.CodeOf(err),
		"error": err.Error(),
	})
}
