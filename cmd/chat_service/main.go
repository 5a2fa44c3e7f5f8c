package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/engine"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/internal/chat/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"
	"chat_sync_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	syncCfg := cfg.Sync.WithDefaults()
	// 本機開發預設開 debug log
	logger.Log.SetDebugMode(config.IsLocal())
	token.SetSecret(os.Getenv("JWT_SECRET"))
	testtool.StartPprof(os.Getenv("PPROF_ADDR"))

	// 1. 建立 Mongo 連線 (聊天室、訊息、已讀)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.MongoSQL.Host),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 2. 建立 Redis 連線 (Pub/Sub + 名稱快取)
	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}

	// 3. 初始化 Repository
	convRepo := repository.NewMongoConversationRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	readRepo := repository.NewMongoReadPointRepository(mongo.Database)
	if err := msgRepo.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("create mongo indexes", zap.Error(err))
	}
	pubsub := repository.NewRedisPubSub(redisClient)

	var directory repository.ParticipantDirectory
	if cfg.Member.Enabled() {
		pool, err := database.NewDatabaseConnection(database.Connection{
			ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
				cfg.Member.User, cfg.Member.Password, cfg.Member.Host, cfg.Member.Port, cfg.Member.Database),
			RetryCount:    cfg.Member.RetryCount,
			RetryInterval: time.Duration(cfg.Member.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect member database", zap.Error(err))
		}
		defer pool.Close()
		directory = repository.NewCachedDirectory(
			repository.NewMemberDirectory(pool),
			database.NewRedisRepository[string](redisClient, "chat:member:name:"),
			syncCfg.DirectoryTTL,
		)
	}

	archiver := repository.NewNopArchiver()
	if cfg.Kafka.Enabled() {
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka", zap.Error(err))
		}
		archiver = repository.NewKafkaArchiver(writer)
	}
	defer archiver.Close()

	// 4. 初始化 UseCases 與 sync engine
	roomUC := app.NewRoomUseCase(convRepo)
	sendMessageUC := app.NewSendMessageUseCase(convRepo, msgRepo, readRepo, pubsub, archiver,
		repository.NewMongoTransactor(mongo.Client))
	historyUC := app.NewHistoryUseCase(convRepo, msgRepo, readRepo, directory)
	sessions := engine.NewManager(app.NewChatChannel(sendMessageUC, pubsub), historyUC, engine.Options{
		WindowSize:     syncCfg.WindowSize,
		FetchTimeout:   syncCfg.FetchTimeout,
		PublishTimeout: syncCfg.PublishTimeout,
	})

	// 5. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r,
		app.NewChatWebsocketHandler(roomUC, sendMessageUC, sessions),
		router.NewHistoryHandler(historyUC, roomUC),
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("fiber shutdown", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	if config.EnvConfig.ChatServicePort != "" {
		port = ":" + config.EnvConfig.ChatServicePort
	}
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Error("Failed to start Fiber", zap.Error(err))
	}

	// session 全部關閉後才關 redis 連線
	if err := sessions.Shutdown(); err != nil {
		logger.Log.Error("close event channel", zap.Error(err))
	}
}

func newRedisClient(c config.RedisConfig) (*redis.Client, error) {
	if c.Sentinel {
		masterName, sentinel := config.GetRedisSetting()
		return database.NewRedisClient(masterName, sentinel, c.Password, c.RedisDB)
	}
	return database.NewRedisClientAddr(c.Addr, c.Password, c.RedisDB)
}
