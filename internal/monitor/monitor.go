// Package monitor serves a read-only JSON view of a running kernel for
// debugging: health, live tasks and executor counters.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"hearth/internal/asyncrt"
	"hearth/internal/klog"
)

// Source is the kernel state the monitor reads.
type Source interface {
	Executor() *asyncrt.Executor
	BootID() uuid.UUID
	BootedAt() time.Time
}

// Server is the monitor HTTP handler.
type Server struct {
	router chi.Router
	src    Source
	log    klog.Sink
}

// New creates a monitor with all routes registered.
func New(src Source, log klog.Sink) *Server {
	if log == nil {
		log = klog.Discard
	}
	s := &Server{router: chi.NewRouter(), src: src, log: log}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleTasks)
		r.Get("/{id}", s.handleTask)
	})
}

// Health is the /healthz payload.
type Health struct {
	BootID   string `json:"boot_id"`
	State    string `json:"state"`
	WakeMode string `json:"wake_mode"`
	Booted   string `json:"booted"`
	Live     int    `json:"live_tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	exec := s.src.Executor()
	respondOK(w, r, Health{
		BootID:   s.src.BootID().String(),
		State:    exec.State().String(),
		WakeMode: exec.WakeMode().String(),
		Booted:   humanize.Time(s.src.BootedAt()),
		Live:     exec.Len(),
	})
}

// StatsView is the /stats payload: raw counters plus readable renderings.
type StatsView struct {
	asyncrt.Stats
	PollsHuman string `json:"polls_human"`
	Uptime     string `json:"uptime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.src.Executor().Stats()
	respondOK(w, r, StatsView{
		Stats:      st,
		PollsHuman: humanize.Comma(int64(min(st.Polls, uint64(1<<63-1)))),
		Uptime:     time.Since(s.src.BootedAt()).Truncate(time.Millisecond).String(),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.src.Executor().Snapshot())
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid task id %q", raw))
		return
	}
	for _, info := range s.src.Executor().Snapshot() {
		if info.ID == asyncrt.TaskID(id) {
			respondOK(w, r, info)
			return
		}
	}
	if _, known := s.src.Executor().Status(asyncrt.TaskID(id)); known {
		respondError(w, r, http.StatusGone, fmt.Sprintf("task %d finished", id))
		return
	}
	respondError(w, r, http.StatusNotFound, fmt.Sprintf("task %d not found", id))
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, log klog.Sink) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", addr, err)
	}
	return ServeListener(ctx, ln, h, log)
}

// ServeListener serves on ln until ctx is done.
func ServeListener(ctx context.Context, ln net.Listener, h http.Handler, log klog.Sink) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	if log != nil {
		log.Log(klog.LevelInfo, fmt.Sprintf("monitor listening on http://%s", ln.Addr()))
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
