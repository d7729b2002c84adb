// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"revisely-go/internal/config"
	"revisely-go/internal/handler"
	"revisely-go/internal/middleware"
	"revisely-go/internal/model"
	"revisely-go/internal/pipeline"
	"revisely-go/internal/rag"
	"revisely-go/internal/repository"
	"revisely-go/internal/service"
	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/database"
	"revisely-go/pkg/embedding"
	"revisely-go/pkg/es"
	"revisely-go/pkg/kafka"
	"revisely-go/pkg/llm"
	"revisely-go/pkg/log"
	"revisely-go/pkg/pdf"
	"revisely-go/pkg/storage"
	"revisely-go/pkg/token"
)

func main() {
	// 1. 初始化配置并校验必需项
	config.Init("./configs/config.yaml")
	cfg := config.Conf
	if err := config.Validate(&cfg); err != nil {
		panic(fmt.Errorf("配置校验失败: %w", err))
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.Quiz{},
		&model.QuizAttempt{},
		&model.Progress{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 4. 按配置选择向量索引后端
	store := buildVectorStore(cfg)

	// 5. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	quizRepo := repository.NewQuizRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	pdfClient := pdf.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	retriever := rag.NewRetriever(embeddingClient, store, cfg.Retrieval.MinScore)
	userService := service.NewUserService(userRepository, jwtManager)
	documentService := service.NewDocumentService(documentRepo, store, cfg.MinIO)
	chatService := service.NewChatService(retriever, llmClient, conversationRepo, cfg.Retrieval)
	quizService := service.NewQuizService(retriever, llmClient, quizRepo, documentRepo)

	// 7. 初始化索引构建管道并启动后台 Kafka 消费者
	builder := pipeline.NewBuilder(
		pdfClient,
		embeddingClient,
		store,
		cfg.MinIO,
		cfg.Retrieval,
		documentRepo,
	)
	go kafka.StartConsumer(cfg.Kafka, builder)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Document 路由组，需要认证
		documentHandler := handler.NewDocumentHandler(documentService)
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:docId", documentHandler.Get)
			documents.DELETE("/:docId", documentHandler.Delete)
			documents.GET("/:docId/download", documentHandler.GetDownloadURL)
		}

		// Quiz 路由组，需要认证
		quizHandler := handler.NewQuizHandler(quizService)
		quiz := apiV1.Group("/quiz")
		quiz.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			quiz.POST("/generate", quizHandler.Generate)
			quiz.GET("", quizHandler.List)
			quiz.POST("/submit", quizHandler.Submit)
			quiz.GET("/progress", quizHandler.GetProgress)
		}

		// Chat 路由 (REST + WebSocket)
		chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
			authedChat := chatGroup.Group("/")
			authedChat.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authedChat.POST("/ask", chatHandler.Ask)
			}
		}
		r.GET("/chat/:token", chatHandler.Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// buildVectorStore 按配置构建向量索引后端。
// "local" 适合单实例部署，"elasticsearch" 适合多实例共享索引的部署。
func buildVectorStore(cfg config.Config) vectorstore.Store {
	switch cfg.VectorStore.Backend {
	case "elasticsearch":
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			panic(fmt.Errorf("es 初始化失败: %w", err))
		}
		return vectorstore.NewEsStore(es.ESClient, cfg.Elasticsearch.IndexPrefix)
	default:
		dataDir := cfg.VectorStore.DataDir
		if dataDir == "" {
			dataDir = "./data/vectorstores"
		}
		store, err := vectorstore.NewLocalStore(dataDir)
		if err != nil {
			panic(fmt.Errorf("本地向量索引初始化失败: %w", err))
		}
		return store
	}
}
