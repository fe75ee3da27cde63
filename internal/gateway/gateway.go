// ABOUTME: Gateway orchestrator wiring the store, engine and HTTP server
// ABOUTME: Owns component lifecycle from config load to graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lobbybee/concierge-gateway/internal/auth"
	"github.com/lobbybee/concierge-gateway/internal/broadcast"
	"github.com/lobbybee/concierge-gateway/internal/config"
	"github.com/lobbybee/concierge-gateway/internal/engine"
	"github.com/lobbybee/concierge-gateway/internal/flow"
	"github.com/lobbybee/concierge-gateway/internal/identity"
	"github.com/lobbybee/concierge-gateway/internal/ledger"
	"github.com/lobbybee/concierge-gateway/internal/router"
	"github.com/lobbybee/concierge-gateway/internal/store"
	"github.com/lobbybee/concierge-gateway/internal/ws"
)

// Gateway orchestrates the concierge-gateway server components.
// It manages the SQLite store, the event engine, and the HTTP server for
// webhook ingestion, WebSocket streaming and health checks.
type Gateway struct {
	config      *config.Config
	store       *store.SQLiteStore
	engine      *engine.Engine
	ledger      *ledger.Ledger
	broadcaster *broadcast.Broadcaster
	wsHandler   *ws.Handler
	httpServer  *http.Server
	logger      *slog.Logger
}

// Dependencies are the external collaborators the engine's flows call out to.
// Nil values fall back to inert defaults suitable for development.
type Dependencies struct {
	Media     flow.MediaDownloader
	Extractor flow.DocumentExtractor
}

// New creates a gateway from configuration
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	media := deps.Media
	if media == nil {
		media = noopMedia{}
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = noopExtractor{}
	}

	broadcaster := broadcast.New(logger)
	led := ledger.New(s, logger)

	steps := flow.NewStepResolver(s, logger)
	hotels := flow.NewStaticHotelDirectory(cfg.Routing.HotelIDs)
	checkin := flow.NewCheckinFlow(s, steps, hotels, media, extractor, cfg.Extraction.Timeout, logger)
	demo := flow.NewDemoFlow(s, steps, logger)
	feedback := flow.NewFeedbackFlow(s, steps, hotels, cfg.Feedback.GoogleReviewLink, logger)
	registry := flow.NewRegistry(checkin, demo, feedback)

	departments := make([]router.Department, len(cfg.Routing.Departments))
	for i, d := range cfg.Routing.Departments {
		departments[i] = router.Department{ID: d.ID, Title: d.Title}
	}
	rtr := router.New(s, registry, departments, cfg.Routing.ExpiryWindow, logger)

	eng := engine.New(engine.Config{
		Store:       s,
		Ledger:      led,
		Resolver:    identity.NewResolver(s, logger),
		Router:      rtr,
		Checkin:     checkin,
		Demo:        demo,
		Feedback:    feedback,
		Broadcaster: broadcaster,
		Logger:      logger,
	})

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	wsHandler := ws.New(broadcaster, verifier, s, logger)

	g := &Gateway{
		config:      cfg,
		store:       s,
		engine:      eng,
		ledger:      led,
		broadcaster: broadcaster,
		wsHandler:   wsHandler,
		logger:      logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      g.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
	}

	return g, nil
}

// routes builds the HTTP mux
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{channel}", g.handleWebhook)
	mux.Handle("GET /ws", g.wsHandler)
	mux.HandleFunc("GET /health", g.handleHealth)
	return mux
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		g.close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("http shutdown incomplete", "error", err)
	}

	g.close()
	return nil
}

func (g *Gateway) close() {
	g.broadcaster.Close()
	g.ledger.Close()
	if err := g.store.Close(); err != nil {
		g.logger.Warn("store close failed", "error", err)
	}
}

// noopMedia stands in when no transport media client is configured. Flows
// treat download failures as re-prompts, so development setups still work.
type noopMedia struct{}

func (noopMedia) DownloadMedia(context.Context, string) ([]byte, error) {
	return nil, errors.New("media downloads are not configured")
}

// noopExtractor stands in when no recognition service is configured. Check-in
// completes with synthesized data in that case.
type noopExtractor struct{}

func (noopExtractor) ExtractIdentityDocument(context.Context, []byte, []byte, string) (*flow.ExtractedIdentity, error) {
	return nil, errors.New("document extraction is not configured")
}
