package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/slopescout/brain/internal/config"
	"github.com/slopescout/brain/internal/engine"
	"github.com/slopescout/brain/internal/ingest"
	"github.com/slopescout/brain/internal/redact"
)

const robotsTxt = "User-agent: *\nDisallow: /\n"

// Server exposes the engine over HTTP.
type Server struct {
	mux     *http.ServeMux
	cfg     *config.Config
	engine  *engine.Engine
	version string
}

// New wires routes for a loaded config and engine.
func New(cfg *config.Config, eng *engine.Engine, version string) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		engine:  eng,
		version: version,
	}

	// Routes
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/config", s.handleConfig)
	s.mux.HandleFunc("/score_and_draft", s.handleScoreAndDraft)
	s.mux.HandleFunc("/robots.txt", handleRobots)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("scout-brain running on %s", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
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
		log.Printf("scout-brain shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Handlers ---

type healthResponse struct {
	OK         bool   `json:"ok"`
	Service    string `json:"service"`
	Version    string `json:"version"`
	Similarity string `json:"similarity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_error")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:         true,
		Service:    "brain",
		Version:    s.version,
		Similarity: s.engine.SimilarityBackend(),
	})
}

type configResponse struct {
	Env                     string             `json:"env"`
	Version                 string             `json:"version"`
	Subreddits              []string           `json:"subreddits"`
	Thresholds              map[string]float64 `json:"thresholds"`
	KeywordCount            int                `json:"keyword_count"`
	MaxCommentsPerSubPerDay int                `json:"max_comments_per_sub_per_day"`
	LinkCooldownHours       int                `json:"link_cooldown_hours"`
	LinkToken               string             `json:"link_token"`
	Similarity              similarityStatus   `json:"similarity"`
	MaxPosts                int                `json:"max_posts"`
}

type similarityStatus struct {
	Enabled     bool    `json:"enabled"`
	Backend     string  `json:"backend"`
	BlendWeight float64 `json:"blend_weight"`
}

// handleConfig exposes non-secret runtime configuration for downstream
// services.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_error")
		return
	}

	ec := s.engine.Config()
	thresholds := make(map[string]float64, len(ec.Thresholds))
	for _, th := range ec.Thresholds {
		thresholds[string(th.Category)] = th.Min
	}
	backend := s.engine.SimilarityBackend()

	writeJSON(w, http.StatusOK, configResponse{
		Env:                     s.cfg.Env,
		Version:                 s.version,
		Subreddits:              ec.SubredditNames(),
		Thresholds:              thresholds,
		KeywordCount:            len(ec.Keywords),
		MaxCommentsPerSubPerDay: ec.Limits.MaxCommentsPerSubPerDay,
		LinkCooldownHours:       ec.Limits.LinkCooldownHours,
		LinkToken:               ec.LinkToken,
		Similarity: similarityStatus{
			Enabled:     backend != "none",
			Backend:     backend,
			BlendWeight: ec.Similarity.BlendWeight,
		},
		MaxPosts: s.cfg.Server.MaxPosts,
	})
}

type scoreAndDraftResponse struct {
	Results []engine.ResultEntry `json:"results"`
}

// handleScoreAndDraft scores candidate posts and returns drafts for human
// review.
func (s *Server) handleScoreAndDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	req, err := ingest.DecodeRequest(r.Body, s.cfg.Server.MaxPosts)
	if err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "request_too_large")
		case errors.Is(err, ingest.ErrTooManyPosts):
			writeError(w, http.StatusBadRequest, err.Error(), "too_many_posts")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		}
		return
	}

	results, err := s.engine.Process(r.Context(), req)
	if err != nil {
		redact.Logf("score_and_draft aborted after %d posts requested: %v", len(req.Posts), err)
		writeError(w, http.StatusServiceUnavailable, "request cancelled", "cancelled")
		return
	}

	writeJSON(w, http.StatusOK, scoreAndDraftResponse{Results: results})
}

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(robotsTxt))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
