package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proptalk/internal/api"
	"proptalk/internal/auth"
	"proptalk/internal/chat"
	"proptalk/internal/commands"
	"proptalk/internal/config"
	"proptalk/internal/friends"
	"proptalk/internal/http"
	"proptalk/internal/identity"
	"proptalk/internal/messages"
	"proptalk/internal/presence"
	"proptalk/internal/storage"
	"proptalk/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("proptalk", flag.ContinueOnError)
	addUser := fs.String("add-user", "", "Username to create (prints the new user's id and token)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	setupLogger(cfg)

	if *addUser != "" {
		return commands.AddUser(os.Stdout, *addUser, cfg)
	}

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	authService, err := auth.NewAuthService(ctx, authConfig)
	if err != nil {
		return err
	}

	users := identity.NewDirectory(ctx, bbStorage, cfg.ProfileCacheTTL)
	graph := friends.NewGraph(bbStorage, users)

	hubConfig := ws.HubConfig{Users: users}
	var mirror *presence.Mirror
	if cfg.RedisURL != "" {
		client, err := presence.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		mirror = presence.NewMirror(client, cfg.PresenceTTL)
		hubConfig.Mirror = mirror
		slog.Info("presence mirror enabled", "redis_db", cfg.RedisDB)
	}
	hub := ws.NewHub(hubConfig)

	router := chat.New(chat.Config{
		Store:             messages.NewStore(bbStorage),
		Friends:           graph,
		Users:             users,
		Live:              hub.Registry(),
		RequireFriendship: cfg.RequireFriendship,
	})

	liveServer := ws.NewServer(authService, hub, router, ws.ServerConfig{
		TrustUserID:  cfg.LiveTrustUserID,
		SendBuffer:   cfg.LiveSendBuffer,
		WriteTimeout: cfg.LiveWriteTimeout,
	})

	apiHandlers := api.New(api.Services{
		Auth:     authService,
		Friends:  graph,
		Chat:     router,
		Users:    users,
		Presence: hub,
	})
	adminHandler := api.NewAdminHandler(authService, users, hub)

	adminServer := http.NewAdminServer(adminHandler, cfg.AdminAddr)
	apiServer := http.NewAPIServer(apiHandlers, liveServer.HandleConnections, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gCtx)
		})
	}

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Hijacked websocket connections are not tracked by http.Server.
		hub.Shutdown()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
