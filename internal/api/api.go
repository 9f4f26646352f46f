// Package api provides HTTP handlers and the main API server logic for VoiceBrain.
//
// It exposes RESTful endpoints for capturing voice memos, driving
// classification, reviewing action items, and managing the context graph.
// The API wires together the store, genai, classify, transcribe, and
// messaging modules and runs the background job runner.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicebrain/voicebrain/internal/actions"
	"github.com/voicebrain/voicebrain/internal/classify"
	"github.com/voicebrain/voicebrain/internal/genai"
	"github.com/voicebrain/voicebrain/internal/messaging"
	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
	"github.com/voicebrain/voicebrain/internal/transcribe"
	"github.com/voicebrain/voicebrain/internal/twiliosms"
)

const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultJobPollInterval is how often the job runner polls for due jobs.
	DefaultJobPollInterval = 5 * time.Second
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the HTTP endpoints. Handlers only touch the store, the job
// queue, and the action state machine; the pipeline itself runs in the
// background job runner.
type Server struct {
	st      store.Store
	jobs    store.JobRepo
	machine *actions.Machine
}

// NewServer creates a Server with its collaborators.
func NewServer(st store.Store, jobs store.JobRepo, machine *actions.Machine) *Server {
	return &Server{st: st, jobs: jobs, machine: machine}
}

// routes registers all endpoint handlers on the mux.
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/memos", s.memosHandler)
	mux.HandleFunc("/memos/", s.memoSubHandler)
	mux.HandleFunc("/actions", s.actionsHandler)
	mux.HandleFunc("/actions/", s.actionHandler)
	mux.HandleFunc("/context", s.contextHandler)
	mux.HandleFunc("/context/", s.contextItemHandler)
	mux.HandleFunc("/health", s.healthHandler)
}

// Run assembles the full service and blocks until SIGINT/SIGTERM or a fatal
// listen error. Transcription and SMS delivery are optional capabilities:
// without Google credentials audio memos fail transcription explicitly, and
// without Twilio credentials Deliver actions complete without sending.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	opts := Opts{Addr: DefaultAddr}
	for _, opt := range apiOpts {
		opt(&opts)
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, jobs, err := openStore(storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	aiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	taxonomy := models.ParseEntitySet(os.Getenv("ENTITY_SET"))
	classifier := classify.NewClassifier(st, aiClient, taxonomy)

	transcriber := openTranscriber(ctx)
	if transcriber != nil {
		defer transcriber.Close()
	}

	machine := actions.NewMachine(st, openMessaging())

	runner := store.NewJobRunner(jobs, DefaultJobPollInterval)
	classify.RegisterJobHandlers(runner, st, jobs, classifier, transcriber)
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("Server.Run: stale job recovery failed", "error", err)
	}
	go runner.Run(ctx)

	server := NewServer(st, jobs, machine)
	mux := http.NewServeMux()
	server.routes(mux)

	httpServer := &http.Server{Addr: opts.Addr, Handler: mux}
	listenErr := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: VoiceBrain API listening", "addr", opts.Addr)
		listenErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("Server.Run: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return err
	}
	slog.Info("Server.Run: shutdown complete")
	return nil
}

// openStore selects a backend from the configured DSN. No DSN means the
// in-memory store, which also serves as the job queue.
func openStore(storeOpts []store.Option) (store.Store, store.JobRepo, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("Server.openStore: no DSN configured, using in-memory store")
		mem := store.NewInMemoryStore()
		return mem, mem, nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		pg, err := store.NewPostgresStore(storeOpts...)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	}
	sq, err := store.NewSQLiteStore(storeOpts...)
	if err != nil {
		return nil, nil, err
	}
	return sq, sq, nil
}

// openTranscriber creates the GCP transcriber when Google credentials are
// configured. Returns nil otherwise; audio memos then fail transcription
// with an explicit status instead of hanging.
func openTranscriber(ctx context.Context) transcribe.Transcriber {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		slog.Info("Server.openTranscriber: GOOGLE_APPLICATION_CREDENTIALS not set, transcription disabled")
		return nil
	}
	t, err := transcribe.NewGCPTranscriber(ctx)
	if err != nil {
		slog.Error("Server.openTranscriber: failed to create transcriber, transcription disabled", "error", err)
		return nil
	}
	return t
}

// openMessaging creates the Twilio messaging service when credentials are
// configured. Returns nil otherwise; Deliver actions then complete without
// an outbound send.
func openMessaging() messaging.Service {
	client, err := twiliosms.NewClient()
	if err != nil {
		slog.Info("Server.openMessaging: Twilio not configured, SMS delivery disabled", "error", err)
		return nil
	}
	return messaging.NewTwilioService(client)
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
