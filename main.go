package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	apirest "github.com/duochat/server/api/rest"
	"github.com/duochat/server/api/sse"
	apows "github.com/duochat/server/api/ws"
	"github.com/duochat/server/audit"
	"github.com/duochat/server/cache"
	"github.com/duochat/server/chat"
	"github.com/duochat/server/config"
	dbadapter "github.com/duochat/server/db"
	mw "github.com/duochat/server/middleware"
	"github.com/duochat/server/model"
	"github.com/duochat/server/scheduler"
	"github.com/duochat/server/session"
	"github.com/duochat/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheCfg := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheCfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheCfg)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Core services ----
	sm := session.NewManager(c, logger)
	defer sm.CloseAll()
	graph := social.NewGraph(db, logger)
	msgLog := chat.NewLog(db, c, cfg.Chat.RecentHistory, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("presence_sweep", time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sm.SyncPresence(ctx)
	})
	sched.AddTicker("stats", 5*time.Minute, func() {
		logger.Info("stats", zap.Int("connected", sm.Count()))
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	chatH := apows.NewChatHandlers(msgLog, sm, pubsub, cfg.Chat, logger)
	chatH.RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, cfg.Security, auditSvc, logger)
	usersH := apirest.NewUsersHandler(db, graph, sm, logger)
	friendsH := apirest.NewFriendsHandler(graph, auditSvc, logger)
	messagesH := apirest.NewMessagesHandler(msgLog, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)

		authed := api.Group("", mw.Auth(cfg.Security, db))
		authed.GET("/users/me", usersH.Me)
		authed.GET("/users/search", usersH.Search)
		authed.POST("/friends/request", friendsH.Request)
		authed.POST("/friends/accept", friendsH.Accept)
		authed.POST("/friends/unfriend", friendsH.Unfriend)
		authed.POST("/friends/block", friendsH.Block)
		authed.GET("/messages/:friend", messagesH.History)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(db, msgLog, pubsub, cfg.Security, logger)
	r.GET("/events", sseH.ServeEvents)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
