// Package api implements the optional introspection API: read-only
// session state, the player roster, and a live websocket event feed for
// dashboard-style clients. It never mutates session state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
)

// SessionView is the read-only surface the API needs from a session;
// satisfied by *session.Session without importing it directly, avoiding an
// api -> session -> api dependency cycle if session ever wants to start
// the API itself.
type SessionView interface {
	Events() *events.Bus
	Players() events.Snapshot
	State() string
	StartedAt() time.Time
	ReconnectCount() int
}

// Server is the introspection API's HTTP server.
type Server struct {
	log        zerolog.Logger
	opts       config.APIOptions
	session    SessionView
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds a Server bound to session. Call Start to serve.
func NewServer(opts config.APIOptions, sess SessionView, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	log = log.With().Str("component", "api").Logger()

	s := &Server{log: log, opts: opts, session: sess}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", s.handleHealthz)
	router.GET("/players", s.handlePlayers)
	router.GET("/events", s.handleEvents)

	return router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.opts.ListenAddress
	if addr == "" {
		addr = ":8080"
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("introspection API starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
