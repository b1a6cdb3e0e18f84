package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tariel-x/callsupport/internal/config"
	"github.com/tariel-x/callsupport/internal/database"
	"github.com/tariel-x/callsupport/internal/handlers"
	"github.com/tariel-x/callsupport/internal/rooms"
	"github.com/tariel-x/callsupport/internal/turn"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/acme/autocert"
)

const AppVersion = "1.0.0"

var buildTimestamp = time.Now().Unix()

func main() {
	httpOnly := flag.Bool("http-only", false, "Serve plain HTTP (behind a TLS-terminating proxy or for local use)")
	selfSigned := flag.Bool("self-signed", false, "Serve HTTPS with a generated self-signed certificate")
	noTURN := flag.Bool("no-turn", false, "Do not start the embedded TURN relay")
	flag.Parse()

	cfg := config.Load(httpOnly)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info(fmt.Sprintf("CallSupport Server v%s (build: %d)", AppVersion, buildTimestamp))

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := rooms.NewStore(db, cfg.RoomTTL)
	go store.RunSweeper(ctx, cfg.RoomTTL/2, time.Now)

	var iceProvider handlers.ICEProvider
	if !*noTURN {
		turnServer, err := turn.Initialize(turn.Options{
			Port:    cfg.TURNPort,
			Realm:   cfg.TURNRealm,
			RelayIP: cfg.TURNRelayIP,
			KeysDir: cfg.KeysDir,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize TURN server", "error", err)
			os.Exit(1)
		}
		defer turnServer.Close()
		iceProvider = turnServer
		logger.Info(fmt.Sprintf("TURN server started at port %d", cfg.TURNPort))
	}

	events := handlers.NewEventHub()
	defer events.CloseAll()

	h := handlers.New(cfg, db, store, events, iceProvider, handlers.NewWebPusher(db, cfg.VAPIDKeys, logger), logger)
	router := setupRouter(h, logger)

	if err := startServer(ctx, router, cfg, *selfSigned, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func setupRouter(h *handlers.Handlers, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), slogGinLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "Cache-Control", "X-Requested-With"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": AppVersion})
	})

	h.SetupRoutes(router)
	return router
}

func newHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(newTLSErrorWriter(logger), "", 0),
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
// Websocket streams are hijacked connections and are closed by the hub.
func serve(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- listen()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func startServer(ctx context.Context, router *gin.Engine, cfg *config.Config, selfSigned bool, logger *slog.Logger) error {
	if cfg.HTTPOnly {
		srv := newHTTPServer(":"+cfg.HTTPPort, router, logger)
		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		return serve(ctx, srv, srv.ListenAndServe)
	}

	if selfSigned {
		return startSelfSignedHTTPS(ctx, router, cfg, logger)
	}

	certsDir := filepath.Join(filepath.Dir(cfg.KeysDir), "certs")
	if err := os.MkdirAll(certsDir, 0700); err != nil {
		return fmt.Errorf("create certs directory: %w", err)
	}

	domain := normalizeDomain(cfg.Domain)
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(_ context.Context, host string) error {
			if normalizeDomain(host) != domain {
				return fmt.Errorf("host %q not configured (expected %q)", host, domain)
			}
			return nil
		},
		Cache: autocert.DirCache(certsDir),
	}

	redirect := newHTTPServer(":"+cfg.HTTPPort, m.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
	})), logger)
	go func() {
		logger.Info("HTTP server (ACME challenge & redirects) starting", "port", cfg.HTTPPort)
		if err := serve(ctx, redirect, redirect.ListenAndServe); err != nil {
			logger.Error("HTTP redirect server failed", "error", err)
		}
	}()

	srv := newHTTPServer(":"+cfg.HTTPSPort, router, logger)
	srv.TLSConfig = m.TLSConfig()

	logger.Info("HTTPS server starting", "port", cfg.HTTPSPort, "domain", domain, "certs_dir", certsDir)
	if domain == "localhost" || domain == "127.0.0.1" {
		logger.Warn("Let's Encrypt will not work for localhost. Use --self-signed or --http-only for local development.")
	}
	return serve(ctx, srv, func() error { return srv.ListenAndServeTLS("", "") })
}

// normalizeDomain lowercases domain and strips a leading "www.".
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
