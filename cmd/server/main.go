package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/parley/chat-app/internal/api"
	"github.com/parley/chat-app/internal/auth"
	"github.com/parley/chat-app/internal/config"
	"github.com/parley/chat-app/internal/files"
	"github.com/parley/chat-app/internal/protocol"
	"github.com/parley/chat-app/internal/ratelimit"
	"github.com/parley/chat-app/internal/realtime"
	"github.com/parley/chat-app/internal/store"
	"github.com/parley/chat-app/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: %v", err)
	}

	// --- Mongo ---
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	cancel()
	if err != nil {
		log.Fatalf("main: failed to connect to mongo: %v", err)
	}

	users, err := store.NewUserStore(context.Background(), db)
	if err != nil {
		log.Fatalf("main: failed to init user store: %v", err)
	}
	chats := store.NewChatStore(db)
	messages := store.NewMessageStore(db)
	requests := store.NewRequestStore(db)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewLimiter(rdb)

	// --- Auth ---
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	socketAuth := auth.NewSocketAuthenticator(tokens, users)

	// --- Files ---
	storage, err := files.NewLocalStorage(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		log.Fatalf("main: failed to init upload storage: %v", err)
	}

	// --- Realtime core ---
	registry := realtime.NewRegistry()
	presence := realtime.NewPresence()
	fanout := realtime.NewFanout(registry)
	handler := realtime.NewHandler(registry, presence, fanout, messages, limiter)

	dispatcher := ws.NewEventDispatcher()
	dispatcher.Register(protocol.EventNewMessage, func(conn *ws.Connection, msg interface{}) {
		ev, ok := msg.(protocol.NewMessageEvent)
		if !ok {
			return
		}
		handler.NewMessage(realtime.User{ID: conn.UserID, Name: conn.UserName}, ev)
	})
	dispatcher.Register(protocol.EventStartTyping, func(conn *ws.Connection, msg interface{}) {
		ev, ok := msg.(protocol.TypingEvent)
		if !ok {
			return
		}
		handler.Typing(protocol.EventStartTyping, ev)
	})
	dispatcher.Register(protocol.EventStopTyping, func(conn *ws.Connection, msg interface{}) {
		ev, ok := msg.(protocol.TypingEvent)
		if !ok {
			return
		}
		handler.Typing(protocol.EventStopTyping, ev)
	})
	dispatcher.Register(protocol.EventChatJoined, func(conn *ws.Connection, msg interface{}) {
		ev, ok := msg.(protocol.ChatPresenceEvent)
		if !ok {
			return
		}
		handler.ChatJoined(ev)
	})
	dispatcher.Register(protocol.EventChatLeft, func(conn *ws.Connection, msg interface{}) {
		ev, ok := msg.(protocol.ChatPresenceEvent)
		if !ok {
			return
		}
		handler.ChatLeft(ev)
	})

	wsConfig := ws.ServerConfig{
		WorkerPoolSize: cfg.WSWorkerPoolSize,
		MaxConnections: cfg.WSMaxConnections,
		ReadTimeout:    cfg.WSReadTimeout,
		WriteTimeout:   cfg.WSWriteTimeout,
	}
	wsServer := ws.NewServer(wsConfig, socketAuth, dispatcher.Dispatch)
	wsServer.SetOnConnect(func(c *ws.Connection) {
		handler.Connect(c.UserID, c)
	})
	wsServer.SetOnDisconnect(func(c *ws.Connection) {
		handler.Disconnect(c.UserID)
	})

	if err := wsServer.Run(); err != nil {
		log.Fatalf("main: failed to start websocket server: %v", err)
	}

	// --- HTTP ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	restServer := api.NewServer(users, chats, messages, requests, tokens,
		storage, fanout, limiter, cfg.Env == "production")
	restServer.Register(router)
	router.GET("/ws", gin.WrapF(wsServer.HandleUpgrade))
	router.Static(cfg.UploadBaseURL, cfg.UploadDir)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("main: received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http shutdown error: %v", err)
		}
		if err := wsServer.Shutdown(); err != nil {
			log.Printf("main: ws shutdown error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("main: redis close error: %v", err)
		}
		if err := db.Client().Disconnect(shutdownCtx); err != nil {
			log.Printf("main: mongo disconnect error: %v", err)
		}
	}()

	log.Printf("main: listening on %s (env=%s)", cfg.ListenAddr, cfg.Env)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server error: %v", err)
	}
}
