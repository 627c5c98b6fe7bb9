// Package server exposes the ChatEval HTTP API: screenshot extraction,
// engagement scoring, and session persistence.
package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
	"github.com/EconCSPKU/ChatEval/pkg/extraction"
	"github.com/EconCSPKU/ChatEval/pkg/store"
)

//go:embed static
var staticFS embed.FS

// Extractor is the screenshot-to-turns collaborator.
type Extractor interface {
	ExtractFromImages(ctx context.Context, images []extraction.Image) ([]chat.Turn, error)
}

// Scorer is the engagement-scoring collaborator.
type Scorer interface {
	ScoreTurns(ctx context.Context, turns []chat.Turn) ([]chat.Turn, error)
}

// Settings controls the HTTP server.
type Settings struct {
	Addr string
}

// Server owns the HTTP handlers and their collaborators.
type Server struct {
	settings  Settings
	store     *store.Store
	extractor Extractor
	scorer    Scorer

	mux    *http.ServeMux
	server *http.Server
}

// New constructs a Server and registers all routes.
func New(settings Settings, st *store.Store, ext Extractor, sc Scorer) *Server {
	s := &Server{
		settings:  settings,
		store:     st,
		extractor: ext,
		scorer:    sc,
		mux:       http.NewServeMux(),
	}
	s.registerHandlers()
	s.server = &http.Server{
		Addr:              settings.Addr,
		Handler:           requestLogger(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until the context is canceled or an
// interrupt arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		defer srvCancel()
		log.Info().Str("addr", s.settings.Addr).Msg("starting chateval server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

// registerHandlers mounts the API and the embedded frontend assets.
func (s *Server) registerHandlers() {
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("POST /api/score", s.handleScore)
	s.mux.HandleFunc("POST /api/save", s.handleSave)
	s.mux.HandleFunc("GET /api/history/{userID}", s.handleHistory)
	s.mux.HandleFunc("GET /api/conversation/{id}", s.handleGetConversation)
	s.mux.HandleFunc("DELETE /api/conversation/{id}", s.handleDeleteConversation)
	s.mux.HandleFunc("POST /api/feedback", s.handleFeedback)

	if sub, err := fs.Sub(staticFS, "static"); err == nil {
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		b, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "index not found", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})
}
