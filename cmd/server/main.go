package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/amittal/traderoom/internal/chat"
	"github.com/amittal/traderoom/internal/config"
	"github.com/amittal/traderoom/internal/database"
	postgresrepo "github.com/amittal/traderoom/internal/repository/postgres"
	"github.com/amittal/traderoom/internal/transport/http/handlers"
	"github.com/amittal/traderoom/internal/transport/http/middleware"
	"github.com/amittal/traderoom/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Error("connecting to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	channelRepo := postgresrepo.NewChannelRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	subscriptionRepo := postgresrepo.NewSubscriptionRepo(pool)

	// Chat engine state. All of it is in-process memory: mutes, bans,
	// presence and typing reset on restart, and running more than one
	// instance needs sticky routing per channel.
	presence := chat.NewPresence()
	typing := chat.NewTypingTracker(cfg.TypingTTL)
	moderation := chat.NewModeration()
	limiter := chat.NewLimiter(messageRepo, cfg.DefaultRateLimit, cfg.AnalystRateLimit)

	relay := ws.NewRelay(log, presence, typing, moderation, limiter,
		channelRepo, messageRepo, subscriptionRepo,
		ws.RelayOptions{
			MaxMessageLength: cfg.MaxMessageLength,
			HistoryLimit:     cfg.HistoryLimit,
		})
	go relay.Run(ctx)

	authenticator := ws.NewJWTAuthenticator(cfg.JWTSecret, userRepo)
	moderationHandler := handlers.NewModerationHandler(relay, channelRepo, log)

	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	mux.HandleFunc("GET /ws", ws.ServeWS(relay, authenticator))

	// REST fallback for moderation, mirroring the in-band events
	mux.Handle("POST /api/v1/channels/{id}/mute", auth(http.HandlerFunc(moderationHandler.Mute)))
	mux.Handle("POST /api/v1/channels/{id}/unmute", auth(http.HandlerFunc(moderationHandler.Unmute)))
	mux.Handle("POST /api/v1/channels/{id}/ban", auth(http.HandlerFunc(moderationHandler.Ban)))
	mux.Handle("POST /api/v1/channels/{id}/unban", auth(http.HandlerFunc(moderationHandler.Unban)))
	mux.Handle("GET /api/v1/channels/{id}/online", auth(http.HandlerFunc(moderationHandler.OnlineUsers)))

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{Addr: addr, Handler: middleware.CORS(mux)}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	log.Info("starting server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
