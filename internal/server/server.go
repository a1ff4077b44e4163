// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the database, services,
// handlers, middleware and the notification scheduler, and decides:
// - Which URL patterns map to which handler functions
// - Which routes need a session (everything under /api except sign-in)
// - How the HTTP server and the scheduler start and stop together
//
// DEPENDENCY INJECTION FLOW:
// cmd/gifteo creates:
//
//	config.Config + *slog.Logger → server.New
//
// server.New creates:
//
//	sqlite.DB → services (AuthService, WishlistService, ...) → handlers
//	sqlite.DB + mailer → notify.Scheduler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/gifteo/internal/auth"
	"github.com/sakif/gifteo/internal/config"
	"github.com/sakif/gifteo/internal/handler"
	"github.com/sakif/gifteo/internal/mail"
	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/middleware"
	"github.com/sakif/gifteo/internal/notify"
	sqliteRepo "github.com/sakif/gifteo/internal/repository/sqlite"
	"github.com/sakif/gifteo/internal/scraper"
	"github.com/sakif/gifteo/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it on the way out;
// callers that never call Start must call Close.
type Server struct {
	router    *chi.Mux
	config    config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	metrics   *metrics.Metrics
	scheduler *notify.Scheduler
}

// New opens the database, loads the global holiday rules and wires every
// component.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	s.setupRoutes()
	return s, nil
}

// OpenDatabase opens (and migrates) the database and refreshes the global
// holiday table from GLOBAL_EVENTS_FILE or the built-in rules.
func OpenDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqliteRepo.DB, error) {
	if cfg.DBPath != ":memory:" {
		// os.MkdirAll is `mkdir -p`: it is fine if the directory exists.
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	events, err := notify.LoadGlobalEvents(cfg.GlobalEventsFile, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading global events: %w", err)
	}
	if err := db.UpsertGlobalEvents(ctx, events); err != nil {
		db.Close()
		return nil, fmt.Errorf("storing global events: %w", err)
	}

	logger.Info("database ready",
		slog.String("path", cfg.DBPath),
		slog.Int("global_events", len(events)),
	)
	return db, nil
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (picked up by Logger)
// 2. RealIP: extracts the client IP from proxy headers
// 3. Recoverer: turns panics into 500s
// 4. Logger, Metrics: one log line and one counter per request
// 5. CORS: the web client lives on another origin
func (s *Server) setupRoutes() {
	cfg, logger, db := s.config, s.logger, s.db

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.CORS(cfg.ClientOrigin, cfg.IsProduction()))

	// === Services ===
	verifier := auth.NewIDTokenVerifier(cfg.GoogleClientID, auth.GoogleCertsURL, nil)
	authService := service.NewAuthService(db, db, verifier, cfg.SessionTTL, cfg.DefaultCountry, logger)
	profileService := service.NewProfileService(db, db, db, db, logger)
	connectionService := service.NewConnectionService(db, db, db, logger)
	wishlistService := service.NewWishlistService(db, db, db, db, s.metrics, logger)
	commentService := service.NewCommentService(db, db, logger)
	calendarService := service.NewCalendarService(db, db, db, logger)
	scrapeService := service.NewScrapeService(scraper.New(cfg.ScrapeTimeout), s.metrics, logger)

	s.scheduler = notify.New(db, db, authService, s.newMailer(), s.metrics, cfg.NotifyHour, logger)

	// A nil *GoogleProvider stored in the interface would not compare equal
	// to nil, so the interface is only assigned when the flow is configured.
	var google handler.OAuthProvider
	if cfg.OAuthEnabled() {
		google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL, verifier)
	} else {
		logger.Warn("Google OAuth redirect flow disabled, only ID-token sign-in is available")
	}

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, profileService, google,
		handler.CookieOptionsFor(cfg.IsProduction()), cfg.ClientOrigin, logger)
	profileHandler := handler.NewProfileHandler(profileService, logger)
	connectionHandler := handler.NewConnectionHandler(connectionService, logger)
	wishlistHandler := handler.NewWishlistHandler(wishlistService, logger)
	commentHandler := handler.NewCommentHandler(commentService, logger)
	calendarHandler := handler.NewCalendarHandler(calendarService, logger)
	scrapeHandler := handler.NewScrapeHandler(scrapeService, logger)
	healthHandler := handler.NewHealthHandler(db, logger)

	// === Operational routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Sign-in (public) ===
	s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
	s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/google", authHandler.HandleGoogleCredential)
		r.Post("/auth/logout", authHandler.HandleLogout)

		// === Protected routes ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService, logger))

			r.Get("/me", authHandler.HandleMe)

			r.Put("/profile", profileHandler.HandleUpdate)
			r.Get("/profile/interests", profileHandler.HandleListInterests)
			r.Put("/profile/interests", profileHandler.HandleReplaceInterests)
			r.Get("/profile/{id}", profileHandler.HandleGet)
			r.Get("/profile/{id}/wishlists", wishlistHandler.HandleListForProfile)
			r.Get("/persons", profileHandler.HandleSearch)

			r.Get("/connections", connectionHandler.HandleList)
			r.Delete("/connections/{personId}", connectionHandler.HandleRemove)
			r.Get("/invitations", connectionHandler.HandleListInvitations)
			r.Post("/invitations", connectionHandler.HandleInvite)
			r.Post("/invitations/{id}/accept", connectionHandler.HandleAccept)
			r.Post("/invitations/{id}/reject", connectionHandler.HandleReject)

			r.Route("/wishlists", func(r chi.Router) {
				r.Get("/", wishlistHandler.HandleListMine)
				r.Post("/", wishlistHandler.HandleCreate)
				r.Get("/shared", wishlistHandler.HandleListShared)
				r.Get("/{id}", wishlistHandler.HandleGet)
				r.Patch("/{id}", wishlistHandler.HandleRename)
				r.Delete("/{id}", wishlistHandler.HandleDelete)
				r.Put("/{id}/items", wishlistHandler.HandleReplaceItems)
				r.Put("/{id}/visibility", wishlistHandler.HandleSetVisibility)
				r.Get("/{id}/comments", commentHandler.HandleList)
				r.Post("/{id}/comments", commentHandler.HandleAdd)
			})

			r.Post("/items/{id}/claim", wishlistHandler.HandleClaim)
			r.Delete("/items/{id}/claim", wishlistHandler.HandleRelease)

			r.Get("/events", calendarHandler.HandleList)
			r.Post("/events", calendarHandler.HandleCreate)
			r.Get("/events/global", calendarHandler.HandleListGlobal)
			r.Put("/events/{id}", calendarHandler.HandleUpdate)
			r.Delete("/events/{id}", calendarHandler.HandleDelete)

			r.Post("/scrape", scrapeHandler.HandleScrape)
		})
	})
}

func (s *Server) newMailer() mail.Mailer {
	if s.config.MailEnabled() {
		return mail.NewHTTPMailer(s.config.MailAPIURL, s.config.MailAPIKey, s.config.MailFrom, s.config.MailRate)
	}
	s.logger.Warn("MAIL_API_URL not set, reminders are logged instead of sent")
	return mail.NewLogMailer(s.logger)
}

// Handler exposes the router (tests drive it with httptest).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Scheduler exposes the notification scheduler for one-off runs.
func (s *Server) Scheduler() *notify.Scheduler {
	return s.scheduler
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start runs the HTTP server and the notification scheduler until ctx is
// cancelled or either of them fails.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// errgroup.WithContext cancels the shared context as soon as one goroutine
// returns an error, so a failed listener also stops the scheduler.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Scrape requests wait on a third-party shop.
		WriteTimeout: s.config.ScrapeTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.AppEnv),
			slog.String("client_origin", s.config.ClientOrigin),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.scheduler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
