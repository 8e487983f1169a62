package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config configures the development backend.
type Config struct {
	Store  LogStore
	Logger zerolog.Logger
	// AppendRate and AppendBurst bound POST /send. Zero picks defaults.
	AppendRate  float64
	AppendBurst int
	// MaxBodyBytes caps request bodies; attachments are inlined so this must
	// exceed the 10 MiB file limit once base64 encoded.
	MaxBodyBytes int64
}

const defaultMaxBody = 16 << 20

// Server serves the message log over HTTP.
type Server struct {
	store   LogStore
	logger  zerolog.Logger
	limiter *rate.Limiter
	metrics *metrics
	maxBody int64
	router  chi.Router
}

// New builds a server and its routes.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		cfg.Store = NewMemoryLog()
	}
	rps := cfg.AppendRate
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.AppendBurst
	if burst <= 0 {
		burst = 40
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	s := &Server{
		store:   cfg.Store,
		logger:  cfg.Logger,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: newMetrics(cfg.Store),
		maxBody: maxBody,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Get("/get", s.handleGet)
	r.Post("/send", s.handleSend)
	r.Route("/api/messages", func(r chi.Router) {
		r.Get("/get", s.handleProxyGet)
		r.Post("/send", s.handleSend)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "count": s.store.Len()})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the server on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("backend listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("backend shutdown")
		}
		return nil
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.All()
	if err != nil {
		s.logger.Error().Err(err).Msg("read log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read messages"})
		return
	}
	s.metrics.fetches.Inc()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, messages)
}

// handleProxyGet answers in the proxy shape: always 200, errors in the body.
func (s *Server) handleProxyGet(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.All()
	if err != nil {
		s.logger.Error().Err(err).Msg("read log")
		writeJSON(w, http.StatusOK, map[string]any{"messages": []string{}, "error": err.Error()})
		return
	}
	s.metrics.fetches.Inc()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendRequest struct {
	Msg     any `json:"msg"`
	Message any `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.metrics.rejected.WithLabelValues("rate_limited").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		return
	}

	var body sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&body); err != nil {
		s.metrics.rejected.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid message"})
		return
	}
	msg := pickMessage(body)
	if msg == "" {
		s.metrics.rejected.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid message"})
		return
	}

	count, err := s.store.Append(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("append log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to send message"})
		return
	}
	s.metrics.appends.Inc()
	s.logger.Debug().Int("count", count).Int("bytes", len(msg)).Msg("message appended")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": count})
}

// pickMessage prefers msg and falls back to message when msg is absent or
// empty. A non-string value reads as invalid.
func pickMessage(body sendRequest) string {
	value := body.Msg
	if value == nil || value == "" {
		value = body.Message
	}
	msg, _ := value.(string)
	return msg
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
