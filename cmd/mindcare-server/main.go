package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/MattCruikshank/mindcare/internal/catalog"
	"github.com/MattCruikshank/mindcare/internal/chat"
	"github.com/MattCruikshank/mindcare/internal/config"
	"github.com/MattCruikshank/mindcare/internal/db"
	"github.com/MattCruikshank/mindcare/internal/logging"
	"github.com/MattCruikshank/mindcare/server"
	"go.uber.org/zap"
	"tailscale.com/tsnet"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		log.Fatal("failed to create state directory", zap.String("dir", cfg.StateDir), zap.Error(err))
	}

	// Listen on the tailnet when a hostname is configured, else plain TCP
	var (
		ln       net.Listener
		resolver auth.Resolver
		tsServer *tsnet.Server
	)
	if cfg.TailnetHostname != "" {
		tsServer = &tsnet.Server{
			Hostname: cfg.TailnetHostname,
			Dir:      filepath.Join(cfg.StateDir, "server-state"),
			Logf:     log.Named("tsnet").Sugar().Debugf,
		}
		log.Info("starting on tailnet", zap.String("hostname", cfg.TailnetHostname))
		ln, err = tsServer.ListenTLS("tcp", ":443")
		if err != nil {
			log.Fatal("failed to listen", zap.Error(err))
		}
		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Fatal("failed to get local client", zap.Error(err))
		}
		resolver = auth.NewAuthenticator(lc)
	} else {
		ln, err = net.Listen("tcp", cfg.Addr)
		if err != nil {
			log.Fatal("failed to listen", zap.String("addr", cfg.Addr), zap.Error(err))
		}
		resolver = auth.Asserted{}
	}
	defer ln.Close()

	// Initialize database
	database, err := db.NewServerDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer database.Close()

	cat, err := catalog.Default()
	if err != nil {
		log.Fatal("failed to load catalog", zap.Error(err))
	}

	sessions, err := auth.NewAdminSessions(cfg.AdminUser, cfg.AdminPasswordHash, 12*time.Hour)
	if err != nil {
		log.Fatal("failed to set up admin sessions", zap.Error(err))
	}
	if cfg.AdminPasswordHash == "" {
		log.Warn("no admin password hash configured, using the demo password")
	}

	// Initialize components
	metrics := server.NewMetrics()
	hub := server.NewHub(log.Named("hub"), metrics)
	go hub.Run()

	chatSvc := chat.NewService(chat.NewRuleCompleter(cat.Coping), database, cfg.ChatPerMinute, cfg.ChatBurst, log.Named("chat"))

	srv := server.NewServer(server.Deps{
		DB:       database,
		Hub:      hub,
		Resolver: resolver,
		Catalog:  cat,
		Chat:     chatSvc,
		Admin:    sessions,
		Metrics:  metrics,
		Log:      log.Named("server"),
	})

	httpServer := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
		hub.Shutdown()
		if tsServer != nil {
			tsServer.Close()
		}
	}()

	url := "http://" + ln.Addr().String()
	if tsServer != nil {
		url = "https://" + cfg.TailnetHostname
		if domains := tsServer.CertDomains(); len(domains) > 0 {
			url = "https://" + domains[0]
		}
	}
	log.Info("MindCare server running", zap.String("url", url), zap.String("env", cfg.Env))
	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}
