package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ogas1024/chat-room/internal/autoreply"
	"github.com/ogas1024/chat-room/internal/config"
	"github.com/ogas1024/chat-room/internal/dispatcher"
	"github.com/ogas1024/chat-room/internal/identity"
	"github.com/ogas1024/chat-room/internal/presence"
	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/internal/router"
	"github.com/ogas1024/chat-room/internal/session"
	"github.com/ogas1024/chat-room/internal/status"
	"github.com/ogas1024/chat-room/internal/store"
	"github.com/ogas1024/chat-room/internal/transport"
	"github.com/ogas1024/chat-room/pkg/database"
	"github.com/ogas1024/chat-room/pkg/jwt"
	"github.com/ogas1024/chat-room/pkg/log"
	"github.com/ogas1024/chat-room/pkg/pubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-room",
	})

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to open database")
	}

	accounts := identity.NewStore(db)
	if err := accounts.Migrate(); err != nil {
		log.L().Fatal().Err(err).Msg("failed to migrate user table")
	}
	messages := store.NewGormRepository(db)
	if err := messages.Migrate(); err != nil {
		log.L().Fatal().Err(err).Msg("failed to migrate message table")
	}

	tokens, err := jwt.NewManager(cfg.Token.TTL, cfg.Token.Issuer)
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to initialize token manager")
	}

	var events pubsub.Publisher = pubsub.Noop{}
	if cfg.Redis.Address != "" {
		pub, err := pubsub.NewRedisPublisher(cfg.Redis)
		if err != nil {
			log.L().Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to redis")
		}
		events = pub
		log.L().Info().Str("address", cfg.Redis.Address).Msg("presence events on redis")
	}
	defer events.Close()

	var responder autoreply.Responder
	if cfg.Responder.URL != "" {
		responder = autoreply.NewHTTPResponder(cfg.Responder.URL, cfg.Responder.Timeout)
		log.L().Info().Str("url", cfg.Responder.URL).Msg("auto-responder enabled")
	}

	reg := registry.New(cfg.Chat.MaxConnections, presence.NewClock())
	rooms := room.NewManager(cfg.Chat.DefaultRoom, cfg.Chat.MaxRoomMembers)
	sessions := session.NewManager(reg, rooms, accounts, tokens, events)
	rt := router.New(reg, rooms, messages, accounts, responder, router.Config{
		MaxBodyLength:    cfg.Chat.MaxBodyLength,
		EchoBroadcast:    cfg.Chat.EchoBroadcast,
		EchoPrivate:      cfg.Chat.EchoPrivate,
		HistoryContext:   cfg.Responder.HistoryContext,
		ResponderTimeout: cfg.Responder.Timeout,
	})
	d := dispatcher.New(reg, rooms, sessions, rt, messages, accounts, dispatcher.Config{
		MaxLoginAttempts:  cfg.Heartbeat.MaxLoginAttempts,
		MaxProtocolErrors: cfg.Heartbeat.MaxProtocolErrors,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		IdleTimeout:       cfg.Heartbeat.IdleTimeout,
		AuthGrace:         cfg.Heartbeat.AuthGrace,
	})

	opts := transport.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		PongWait:     cfg.WebSocket.PongWait,
		WriteWait:    cfg.WebSocket.WriteWait,
		MaxFrameSize: cfg.WebSocket.MaxFrameSize,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket listener.
	mux := http.NewServeMux()
	dispatcher.NewWSHandler(d, opts).RegisterRoutes(mux)
	wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	wsServer := &http.Server{
		Addr:        wsAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	g.Go(func() error {
		log.L().Info().Str("address", wsAddr).Msg("websocket listener up")
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Raw TCP listener.
	if cfg.TCP.Enabled {
		tcpAddr := fmt.Sprintf("%s:%d", cfg.TCP.Host, cfg.TCP.Port)
		lis, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			log.L().Fatal().Err(err).Str("address", tcpAddr).Msg("failed to listen")
		}
		g.Go(func() error {
			log.L().Info().Str("address", tcpAddr).Msg("tcp listener up")
			err := d.ServeTCP(ctx, lis, opts)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Operator status API.
	statusAddr := fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port)
	statusServer := &http.Server{
		Addr:    statusAddr,
		Handler: status.NewHandler(reg, rooms).Router(),
	}
	g.Go(func() error {
		log.L().Info().Str("address", statusAddr).Msg("status listener up")
		if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Heartbeat sweep and eviction consumer.
	g.Go(func() error {
		err := d.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Shutdown on signal or first listener failure.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		wsServer.Shutdown(shutdownCtx)
		statusServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.L().Fatal().Err(err).Msg("server error")
	}
	log.L().Info().Msg("chat-room stopped")
}
