// Package server exposes reel generation over HTTP: submit a story idea or
// a ready script, poll its status, and fetch the rendered video.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/reelsmith/internal/pipeline"
)

// GenerateFunc writes a script for a story idea and returns its path.
type GenerateFunc func(ctx context.Context, cfg pipeline.Config, idea string) (string, error)

// RunFunc renders a reel from a validated config.
type RunFunc func(ctx context.Context, cfg pipeline.Config) (pipeline.Result, error)

const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

type reelStatus struct {
	Name   string `json:"reel_name"`
	Idea   string `json:"idea,omitempty"`
	Theme  string `json:"theme,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Video  string `json:"video,omitempty"`
}

type Server struct {
	base     pipeline.Config
	generate GenerateFunc
	run      RunFunc
	log      *slog.Logger

	mu    sync.Mutex
	reels map[string]*reelStatus
}

func New(base pipeline.Config, generate GenerateFunc, run RunFunc, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		base:     base,
		generate: generate,
		run:      run,
		log:      log,
		reels:    make(map[string]*reelStatus),
	}
}

func (s *Server) outDir() string {
	if s.base.OutDir != "" {
		return s.base.OutDir
	}
	return "out"
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /reels", s.handleReels)
	mux.HandleFunc("GET /status/{name}", s.handleStatus)
	mux.Handle("/videos/", http.StripPrefix("/videos/", http.FileServer(http.Dir(s.outDir()))))
	return mux
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type generateRequest struct {
	Idea   string `json:"idea"`
	Script string `json:"script"`
	Name   string `json:"name"`
	Theme  string `json:"theme"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Idea = strings.TrimSpace(req.Idea)
	req.Script = strings.TrimSpace(req.Script)
	if req.Idea == "" && req.Script == "" {
		s.writeError(w, http.StatusBadRequest, "idea or script is required")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" && req.Idea != "" {
		name = pipeline.ReelNameFromIdea(req.Idea)
	}
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required when submitting a script")
		return
	}

	s.mu.Lock()
	if st, ok := s.reels[name]; ok && st.Status == statusProcessing {
		s.mu.Unlock()
		s.writeError(w, http.StatusConflict, fmt.Sprintf("reel %q is already processing", name))
		return
	}
	s.reels[name] = &reelStatus{
		Name:   name,
		Idea:   req.Idea,
		Theme:  req.Theme,
		Status: statusProcessing,
	}
	s.mu.Unlock()

	go s.process(name, req)

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message":   "reel generation started",
		"reel_name": name,
	})
}

func (s *Server) process(name string, req generateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Hour)
	defer cancel()

	cfg := s.base
	cfg.ReelName = name
	cfg.OutDir = s.outDir()
	if req.Theme != "" {
		cfg.Theme = req.Theme
	}

	err := func() error {
		var scriptPath string
		if req.Script != "" {
			scriptPath = filepath.Join(cfg.OutDir, name+"_script.txt")
			if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(scriptPath, []byte(req.Script+"\n"), 0o644); err != nil {
				return err
			}
		} else {
			p, err := s.generate(ctx, cfg, req.Idea)
			if err != nil {
				return err
			}
			scriptPath = p
		}
		cfg.ScriptPath = scriptPath
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		res, err := s.run(ctx, cfg)
		if err != nil {
			return err
		}
		s.finish(name, res.FinalPath)
		return nil
	}()
	if err != nil {
		s.log.Error("reel generation failed", "reel", name, "error", err)
		s.fail(name, err)
	}
}

func (s *Server) finish(name, finalPath string) {
	video := "/videos/" + name + "/" + name + ".mp4"
	if rel, err := filepath.Rel(s.outDir(), finalPath); err == nil && !strings.HasPrefix(rel, "..") {
		video = "/videos/" + filepath.ToSlash(rel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.reels[name]; ok {
		st.Status = statusCompleted
		st.Video = video
	}
}

func (s *Server) fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.reels[name]; ok {
		st.Status = statusFailed
		st.Error = err.Error()
	}
}

func (s *Server) handleReels(w http.ResponseWriter, r *http.Request) {
	s.importExisting()

	s.mu.Lock()
	reels := make([]reelStatus, 0, len(s.reels))
	for _, st := range s.reels {
		reels = append(reels, *st)
	}
	s.mu.Unlock()

	sort.Slice(reels, func(i, j int) bool { return reels[i].Name < reels[j].Name })
	s.writeJSON(w, http.StatusOK, map[string]any{"reels": reels})
}

// importExisting picks up reels rendered by earlier runs or the CLI so the
// listing reflects the whole workspace, not just this process.
func (s *Server) importExisting() {
	entries, err := os.ReadDir(s.outDir())
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if _, ok := s.reels[name]; ok {
			continue
		}
		final := filepath.Join(s.outDir(), name, name+".mp4")
		if _, err := os.Stat(final); err != nil {
			continue
		}
		s.reels[name] = &reelStatus{
			Name:   name,
			Status: statusCompleted,
			Video:  "/videos/" + name + "/" + name + ".mp4",
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	st, ok := s.reels[name]
	if ok {
		cp := *st
		s.mu.Unlock()
		s.writeJSON(w, http.StatusOK, cp)
		return
	}
	s.mu.Unlock()

	s.importExisting()
	s.mu.Lock()
	st, ok = s.reels[name]
	if ok {
		cp := *st
		s.mu.Unlock()
		s.writeJSON(w, http.StatusOK, cp)
		return
	}
	s.mu.Unlock()

	s.writeError(w, http.StatusNotFound, fmt.Sprintf("reel %q not found", name))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
