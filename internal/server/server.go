// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/markb/linglite/internal/auth"
	"github.com/markb/linglite/internal/chat"
	"github.com/markb/linglite/internal/db"
	"github.com/markb/linglite/internal/friends"
	"github.com/markb/linglite/internal/log"
	"github.com/markb/linglite/internal/observability"
	"github.com/markb/linglite/internal/profile"
	"github.com/markb/linglite/internal/realtime"
	"github.com/markb/linglite/internal/storage"
)

type Server struct {
	db     *db.DB
	router *chi.Mux

	authService    *auth.Service
	profileService *profile.Service
	friendsService *friends.Service
	chatService    *chat.Service

	storageService *storage.Service
	storageHandler *storage.Handler

	realtimeService *realtime.Service

	telemetry *observability.Telemetry
	jwtSecret string

	// HTTP server for graceful shutdown
	httpServer *http.Server

	// HTTPS fields
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// Config holds server configuration.
type Config struct {
	JWTSecret     string
	StorageConfig *storage.Config
	Telemetry     *observability.Telemetry
}

func New(database *db.DB, cfg Config) *Server {
	s := &Server{
		db:             database,
		router:         chi.NewRouter(),
		authService:    auth.NewService(database, cfg.JWTSecret),
		profileService: profile.NewService(database),
		friendsService: friends.NewService(database),
		chatService:    chat.NewService(database),
		telemetry:      cfg.Telemetry,
		jwtSecret:      cfg.JWTSecret,
	}

	// Storage service for avatars and voice notes
	storageCfg := storage.Config{Backend: "local", LocalPath: "./storage"}
	if cfg.StorageConfig != nil {
		storageCfg = *cfg.StorageConfig
	}
	storageService, err := storage.NewService(storageCfg)
	if err == nil {
		s.storageService = storageService
		s.storageHandler = storage.NewHandler(storageService, func(r *http.Request) string {
			if user := GetUserFromContext(r); user != nil {
				return user.ID
			}
			return ""
		})
		s.storageHandler.OnAvatarSaved = func(userID, url string) {
			if err := s.profileService.SetAvatarURL(userID, url); err != nil {
				log.Warn("failed to record avatar url", "user_id", userID, "error", err.Error())
			}
		}
	} else {
		log.Warn("failed to initialize storage service", "error", err.Error())
	}

	// Realtime core, wired to the persistent stores
	s.realtimeService = realtime.NewService(cfg.JWTSecret, realtime.Collaborators{
		Authorizer: roomAuthorizer{s.chatService},
		Messages:   messageStore{s.chatService},
		Contacts:   contactResolver{s.friendsService},
		Presence:   s.profileService,
		Calls:      callArchiver{s.chatService},
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based apps
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))
	if s.telemetry != nil {
		s.router.Use(observability.HTTPMiddleware(s.telemetry, "linglite"))
	}

	s.router.Get("/health", s.handleHealth)

	// Auth routes
	s.router.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/token", s.handleToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/user", s.handleGetUser)
			r.Post("/logout", s.handleLogout)
		})
	})

	// Application API
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/profile", s.handleGetOwnProfile)
		r.Patch("/profile", s.handleUpdateProfile)
		r.Get("/profile/{userID}", s.handleGetProfile)
		r.Get("/discover", s.handleDiscover)

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", s.handleListFriends)
			r.Delete("/{userID}", s.handleRemoveFriend)
			r.Post("/requests", s.handleSendFriendRequest)
			r.Get("/requests", s.handleListFriendRequests)
			r.Delete("/requests/{requestID}", s.handleCancelFriendRequest)
			r.Post("/requests/{requestID}/accept", s.handleAcceptFriendRequest)
			r.Post("/requests/{requestID}/decline", s.handleDeclineFriendRequest)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", s.handleListChats)
			r.Post("/", s.handleOpenChat)
			r.Get("/{chatID}/messages", s.handleGetMessages)
			r.Post("/{chatID}/messages", s.handleSendMessage)
			r.Get("/{chatID}/messages/search", s.handleSearchMessages)
		})

		r.Get("/calls", s.handleListCalls)
	})

	// Storage routes
	if s.storageHandler != nil {
		s.router.Route("/storage/v1", func(r chi.Router) {
			// Objects are served without auth so avatar URLs work in <img> tags.
			r.Get("/object/*", s.storageHandler.GetObject)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/avatar", s.storageHandler.UploadAvatar)
				r.Post("/audio", s.storageHandler.UploadAudio)
			})
		})
	}

	// Realtime websocket; authenticates via access_token itself.
	s.router.Get("/realtime/v1/websocket", s.realtimeService.HandleWebSocket)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

// RealtimeService returns the realtime core.
func (s *Server) RealtimeService() *realtime.Service {
	return s.realtimeService
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.realtimeService.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "healthy",
		"realtime": stats,
	})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS serves HTTPS with Let's Encrypt certificates for the
// given domain, plus an HTTP listener for ACME challenges and redirects.
func (s *Server) ListenAndServeTLS(domain, certDir, httpAddr, httpsAddr string) error {
	if err := ValidateDomain(domain); err != nil {
		return err
	}

	s.autocertMgr = NewAutocertManager(domain, certDir)

	s.httpRedirect = &http.Server{
		Addr:    httpAddr,
		Handler: s.autocertMgr.HTTPHandler(HTTPRedirectHandler(domain)),
	}
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http redirect server failed", "error", err.Error())
		}
	}()

	s.httpsServer = &http.Server{
		Addr:      httpsAddr,
		Handler:   s.router,
		TLSConfig: NewTLSConfig(s.autocertMgr),
	}
	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the HTTP server(s).
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS server: %w", err))
		}
	}

	if s.httpRedirect != nil {
		if err := s.httpRedirect.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP redirect server: %w", err))
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}

	if s.storageService != nil {
		if err := s.storageService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
