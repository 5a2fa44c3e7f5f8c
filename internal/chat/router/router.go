package router

import (
	"context"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册聊天相關的路由
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, history *HistoryHandler) {
	r.Get("/", ConnectCheck)
	r.Post("/debug", DebugLogFlag)

	auth := middlewares.JWTMiddleware()

	r.Get("/ws", auth, websocket.New(func(c *websocket.Conn) {
		// 每條連線一個 handler 執行個體，session 都掛在連線上
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/chatrooms/:id", auth, history.GetConversation)
	r.Get("/messages", auth, history.GetMessages)
	r.Get("/points", auth, history.GetReadPoints)
}
