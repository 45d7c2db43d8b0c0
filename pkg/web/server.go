// Package web exposes the explorer over HTTP: a small session API, an SSE
// stream per session, and the topology and overlay data endpoints the
// rendering surface draws from.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/meridianlabs/topoview/pkg/backend"
	"github.com/meridianlabs/topoview/pkg/explore"
	"github.com/meridianlabs/topoview/pkg/logging"
	"github.com/meridianlabs/topoview/pkg/observability"
	"github.com/meridianlabs/topoview/pkg/pubsub"
	"github.com/meridianlabs/topoview/pkg/topology"
)

//go:embed static/*
var staticFiles embed.FS

// Options wires the server to its collaborators. Inventory and Backend are
// required; Collector is optional and disables /metrics when nil.
type Options struct {
	Inventory *topology.Inventory
	Backend   backend.Client
	Collector *observability.Collector

	SessionTTL     time.Duration
	RequestTimeout time.Duration
}

// Server is the HTTP front of the explorer
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	sessions  *sessionRegistry
	opts      Options
}

// NewServer creates the server, its session registry, and the SSE publisher
func NewServer(opts Options) *Server {
	publisher := pubsub.NewSSEPublisher()
	publisher.ConfigureTopic(pubsub.TopologyTopic, pubsub.TopicConfig{
		BufferSize: 1,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		publisher: publisher,
		opts:      opts,
	}
	s.sessions = newSessionRegistry(opts.SessionTTL, func(sess *explore.Session) {
		// The stream ends with a bye so clients stop reconnecting
		_ = publisher.Publish(pubsub.SessionTopic(sess.ID()), pubsub.EventTypeBye, nil)
		opts.Collector.SessionClosed()
	})

	// New snapshots reach the sessions (which may resolve pending
	// restorations) and the topology stream
	opts.Inventory.Subscribe(func(snap *topology.Snapshot) {
		s.sessions.broadcastInventory(snap)
		opts.Collector.SetInventoryCounts(
			len(snap.Metros), len(snap.Devices), len(snap.Links), len(snap.Validators))
		_ = publisher.Publish(pubsub.TopologyTopic, "snapshot", pubsub.TopologyUpdate{
			Version:    snap.Version,
			Metros:     len(snap.Metros),
			Devices:    len(snap.Devices),
			Links:      len(snap.Links),
			Validators: len(snap.Validators),
		})
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/events", s.handleSessionEvent).Methods(http.MethodPost)
	api.HandleFunc("/subscribe/sessions/{id}", s.handleSubscribeSession).Methods(http.MethodGet)
	api.HandleFunc("/subscribe/topology", s.handleSubscribeTopology).Methods(http.MethodGet)
	api.HandleFunc("/topology", s.handleTopology).Methods(http.MethodGet)
	api.HandleFunc("/overlays/critical-links", s.handleCriticalLinks).Methods(http.MethodGet)
	api.HandleFunc("/overlays/link-health", s.handleLinkHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.opts.Collector != nil {
		s.router.Handle("/metrics", s.opts.Collector.Handler()).Methods(http.MethodGet)
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err == nil {
		s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
	}
}

// Handler returns the full middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Run serves until the context is cancelled, then drains with a short
// shutdown window
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:    listen,
		Handler: s.Handler(),
	}

	janitorCtx, cancelJanitor := context.WithCancel(ctx)
	defer cancelJanitor()
	go s.sessions.runJanitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", "addr", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.publisher.Close()
	return srv.Shutdown(shutdownCtx)
}

// createSessionRequest optionally carries the query string the client
// arrived with so the session restores state from it
type createSessionRequest struct {
	Query string `json:"query,omitempty"`
}

type createSessionResponse struct {
	SessionID string                 `json:"sessionId"`
	State     *explore.StateSnapshot `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body is a plain new session
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// The topic must exist before the session constructs: restoration can
	// publish focus and state synchronously inside NewSession, and the
	// retained window is what the first subscriber replays.
	id := uuid.New().String()
	topic := pubsub.SessionTopic(id)
	s.publisher.ConfigureTopic(topic, pubsub.TopicConfig{
		BufferSize: 1,
		ReplayAll:  false,
	})

	cfg := explore.Config{
		Backend:        s.opts.Backend,
		Inventory:      s.opts.Inventory,
		Metrics:        s.opts.Collector,
		RequestTimeout: s.opts.RequestTimeout,
		OnState: func(snap *explore.StateSnapshot) {
			_ = s.publisher.Publish(pubsub.SessionTopic(snap.SessionID), pubsub.EventTypeState, snap)
		},
		OnFocus: func(ref topology.EntityRef) {
			_ = s.publisher.Publish(topic, pubsub.EventTypeFocus, pubsub.FocusRequest{
				Type: string(ref.Type),
				ID:   ref.ID,
			})
		},
	}

	sess := s.sessions.create(id, cfg, req.Query)
	s.opts.Collector.SessionOpened()

	logging.InfoContext(r.Context(), "session created",
		"sessionID", sess.ID(), "restoring", req.Query != "")
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID(),
		State:     sess.Snapshot(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.remove(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var ev explore.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}

	snap, err := sess.Apply(ev)
	switch {
	case errors.Is(err, explore.ErrSessionClosed):
		writeError(w, http.StatusGone, "session closed")
		return
	case errors.Is(err, explore.ErrUnknownEvent), errors.Is(err, explore.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSubscribeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.sessions.get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.serveSSE(w, r, pubsub.SessionTopic(id))
}

func (s *Server) handleSubscribeTopology(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, pubsub.TopologyTopic)
}

// serveSSE streams a topic until the client goes away or the publisher
// closes the subscription
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "subscription unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logging.DebugContext(r.Context(), "sse stream opened", "topic", topic)
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "sse write failed", "topic", topic, "error", err)
				return
			}
			flusher.Flush()
			if event.Type == pubsub.EventTypeBye {
				return
			}
		}
	}
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Inventory.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "topology not loaded")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCriticalLinks(w http.ResponseWriter, r *http.Request) {
	result, err := s.opts.Backend.CriticalLinks(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("critical links: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLinkHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.opts.Backend.LinkHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("link health: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status           string `json:"status"`
	InventoryVersion uint64 `json:"inventoryVersion"`
	Sessions         int    `json:"sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.sessions.count()}
	if snap := s.opts.Inventory.Current(); snap != nil {
		resp.InventoryVersion = snap.Version
	} else {
		resp.Status = "loading"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
