// Package httpapi exposes the read-only pull surface for downstream sinks:
// versioned channel-reputation and signal views, plus health and metrics
// endpoints. It never mutates engine state.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/scbot/internal/domain"
)

// ChannelLister supplies channel-reputation views, usually the Reputation Engine.
type ChannelLister interface {
	ListChannels() []domain.ChannelReputationView
}

// SignalLister supplies signal views, usually the persistence layer.
type SignalLister interface {
	ListSignals(filter domain.SignalFilter) []domain.SignalView
}

// Server is the read-only HTTP surface.
type Server struct {
	channels ChannelLister
	signals  SignalLister
	router   *mux.Router
	srv      *http.Server
}

// New constructs a Server. gatherer backs the /metrics endpoint; pass the
// process registry.
func New(addr string, channels ChannelLister, signals SignalLister, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		channels: channels,
		signals:  signals,
		router:   mux.NewRouter(),
	}

	s.router.Use(requestIDMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	v1.HandleFunc("/signals", s.handleListSignals).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routing handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("http api listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestIDMiddleware tags every request with an id for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.channels.ListChannels())
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.SignalFilter{
		ChannelID: q.Get("channel_id"),
		CoinKey:   q.Get("coin_key"),
	}
	if status := q.Get("status"); status != "" {
		st := domain.SignalStatus(status)
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		filter.Status = st
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	views := s.signals.ListSignals(filter)
	if views == nil {
		views = []domain.SignalView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
