package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rtc-service/internal/db"
	"rtc-service/internal/directory"
	"rtc-service/internal/events"
	"rtc-service/internal/handlers"
	"rtc-service/internal/middleware"
	"rtc-service/internal/observability"
	"rtc-service/internal/repositories"
	"rtc-service/internal/session"
	"rtc-service/internal/telemetry"
	"rtc-service/internal/ws"
)

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing := telemetry.InitTracing("rtc-service", getEnv("OTLP_ENDPOINT", ""))
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := observability.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "rtc_events"))
	defer publisher.Close()
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.rtc", "rtc-service", getEnv("ENVIRONMENT", "development"))

	dirClient := directory.NewClient(getEnv("USER_SERVICE_URL", "http://localhost:8085"))

	store := session.NewStore()
	engine := session.NewEngine(store)

	messageRepo := repositories.NewMessageRepo(database)
	receiptRepo := repositories.NewReceiptRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)

	hub := ws.NewHub()
	broker := events.NewBroker(hub)
	defer broker.Close()

	sessionHandler := handlers.NewSessionHandler(engine, store, dirClient, broker, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, receiptRepo, reactionRepo, dirClient, dirClient, dirClient, broker, audit)

	sessionWS := ws.NewSessionSocketHandler(hub, engine, dirClient)
	targetWS := ws.NewTargetSocketHandler(hub, dirClient, dirClient)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("rtc-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(dirClient)

	router.POST("/sessions", authMiddleware, sessionHandler.CreateSession)
	router.GET("/sessions", authMiddleware, sessionHandler.ListMySessions)
	router.GET("/sessions/:session_id", authMiddleware, sessionHandler.GetSession)
	router.POST("/sessions/:session_id/join", authMiddleware, sessionHandler.JoinSession)
	router.POST("/sessions/:session_id/leave", authMiddleware, sessionHandler.LeaveSession)
	router.POST("/sessions/:session_id/end", authMiddleware, sessionHandler.EndSession)
	router.PATCH("/sessions/:session_id/flags", authMiddleware, sessionHandler.UpdateFlags)
	router.POST("/sessions/:session_id/hand", authMiddleware, sessionHandler.ToggleHand)
	router.POST("/sessions/:session_id/participants/:user_id/promote", authMiddleware, sessionHandler.PromoteParticipant)
	router.POST("/sessions/:session_id/participants/:user_id/demote", authMiddleware, sessionHandler.DemoteParticipant)
	router.POST("/sessions/:session_id/requests", authMiddleware, sessionHandler.RequestJoin)
	router.POST("/sessions/:session_id/requests/:user_id/approve", authMiddleware, sessionHandler.ApproveRequest)
	router.DELETE("/sessions/:session_id/requests/:user_id", authMiddleware, sessionHandler.RejectRequest)

	router.POST("/:target_kind/:target_id/messages", authMiddleware, messageHandler.PostMessage)
	router.GET("/:target_kind/:target_id/messages", authMiddleware, messageHandler.ListMessages)
	router.GET("/:target_kind/:target_id/messages/pinned", authMiddleware, messageHandler.ListPinned)
	router.POST("/messages/:message_id/delivered", authMiddleware, messageHandler.MarkDelivered)
	router.POST("/messages/:message_id/read", authMiddleware, messageHandler.MarkRead)
	router.POST("/messages/:message_id/pin", authMiddleware, messageHandler.TogglePin)
	router.PUT("/messages/:message_id/reactions/:emoji", authMiddleware, messageHandler.AddReaction)
	router.DELETE("/messages/:message_id/reactions/:emoji", authMiddleware, messageHandler.RemoveReaction)
	router.PATCH("/messages/:message_id", authMiddleware, messageHandler.EditMessage)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.GET("/messages/:message_id/receipts", authMiddleware, messageHandler.GetReceipts)

	router.GET("/ws/sessions/:session_id", sessionWS.Handle)
	router.GET("/ws/:target_kind/:target_id", targetWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
