// Package admin is the Control Tower's HTTP control plane: subscribe,
// unsubscribe, per-worker statistics, and cache administration, plus the
// SSE delivery endpoint. Grounded on the prior single-node runtime's
// internal/server/http/server.go (handler-struct-per-resource, the cors
// middleware, and the /v1/healthz and /v1/ns/create shapes) and
// controllers/utils.go's writeJSON/writeError helpers, narrowed to the
// operations the control plane exposes instead of the
// prior single-node runtime's channel-publish/ack/nack surface.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlexxNica/RocketSpeed/internal/config"
	"github.com/AlexxNica/RocketSpeed/internal/metrics"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/namespace"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/AlexxNica/RocketSpeed/internal/tower"
	"github.com/AlexxNica/RocketSpeed/internal/transport/ssetransport"
	idpkg "github.com/AlexxNica/RocketSpeed/pkg/id"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

// Server is the HTTP control plane.
type Server struct {
	pool    *tower.Pool
	sse     *ssetransport.Transport
	metrics *metrics.Registry
	db      *pebblestore.DB
	policy  namespace.Policy
	cfg     config.Config
	log     logpkg.Logger

	srv *http.Server
	lis net.Listener
	ids *idpkg.Generator

	statsMu sync.Mutex
	prev    map[string]topictailer.Stats
}

// New builds a Server. sse is the same Transport instance every tower.Worker
// in pool was constructed with, so a subscriber registered here is the one
// records get delivered to.
func New(cfg config.Config, pool *tower.Pool, sse *ssetransport.Transport, reg *metrics.Registry, db *pebblestore.DB, log logpkg.Logger) *Server {
	policy := namespace.Policy{
		AllowAutoCreate: cfg.AllowAutoCreateNamespaces,
		NameRegex:       cfg.NamespaceNameRegex,
		AllowedNames:    cfg.AllowedNamespaces,
		MaxNamespaces:   cfg.MaxNamespaces,
	}
	s := &Server{pool: pool, sse: sse, metrics: reg, db: db, policy: policy, cfg: cfg, log: log.WithComponent("admin"), ids: idpkg.NewGenerator(), prev: make(map[string]topictailer.Stats)}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/subscribe", s.handleSubscribeSSE)
	mux.HandleFunc("/v1/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("/v1/streams/unsubscribe", s.handleUnsubscribeStream)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/cache/clear", s.handleCacheClear)
	mux.HandleFunc("/v1/cache/resize", s.handleCacheResize)
	mux.Handle("/metrics", reg.Handler())
	s.srv = &http.Server{Handler: cors(s.withRequestID(mux))}
	return s
}

// withRequestID stamps every response with an X-Request-Id, generated
// from pkg/id's monotonic generator so request logs can be correlated
// even across a burst of requests within the same millisecond.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := s.ids.Next()
		w.Header().Set("X-Request-Id", reqID.String())
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener without waiting for graceful shutdown.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// parseTopic reads namespace/name query params into a model.TopicUUID,
// admitting the namespace via Policy and persisting its Meta on first
// use.
func (s *Server) parseTopic(r *http.Request) (model.TopicUUID, error) {
	ns := r.URL.Query().Get("namespace")
	name := r.URL.Query().Get("topic")
	if ns == "" {
		ns = s.cfg.DefaultNamespaceName
	}
	if name == "" {
		return model.TopicUUID{}, errors.New("missing topic")
	}
	if err := s.policy.Validate(ns); err != nil {
		return model.TopicUUID{}, err
	}
	if _, err := namespace.EnsureNamespace(s.db, ns); err != nil {
		return model.TopicUUID{}, err
	}
	return model.TopicUUID{Namespace: ns, Name: name}, nil
}

func parseSubscriber(r *http.Request) (model.SubscriberID, error) {
	streamStr := r.URL.Query().Get("stream")
	if streamStr == "" {
		id := uuid.New()
		return model.SubscriberID{Stream: model.StreamID(id), Handle: 1}, nil
	}
	id, err := uuid.Parse(streamStr)
	if err != nil {
		return model.SubscriberID{}, err
	}
	return model.SubscriberID{Stream: model.StreamID(id), Handle: 1}, nil
}

// handleSubscribeSSE opens a long-lived SSE connection, registers it with
// the ssetransport.Transport, and subscribes it against the owning
// tower.Worker for the lifetime of the request.
func (s *Server) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	topic, err := s.parseTopic(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := parseSubscriber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var startSeqno model.SeqNo
	if v := r.URL.Query().Get("seqno"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			startSeqno = model.SeqNo(n)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.sse.Register(sub, w)
	defer s.sse.Unregister(sub)

	if err := s.pool.Subscribe(sub, topic, startSeqno); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = s.pool.Unsubscribe(sub) }()

	<-r.Context().Done()
}

type unsubscribeReq struct {
	Stream string `json:"stream"`
	Handle uint64 `json:"handle"`
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req unsubscribeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := uuid.Parse(req.Stream)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub := model.SubscriberID{Stream: model.StreamID(id), Handle: req.Handle}
	if err := s.pool.Unsubscribe(sub); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	streamStr := r.URL.Query().Get("stream")
	id, err := uuid.Parse(streamStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pool.UnsubscribeStream(model.StreamID(id)); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type workerStats struct {
	Worker string `json:"worker"`
	Stats  any    `json:"stats"`
}

// handleStats reports every worker's topictailer.Stats and feeds the same
// snapshot into the Prometheus registry.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := make([]workerStats, 0, len(s.pool.Workers()))
	s.statsMu.Lock()
	for _, wk := range s.pool.Workers() {
		st := wk.Statistics()
		out = append(out, workerStats{Worker: wk.Name(), Stats: st})
		s.metrics.Observe(wk.Name(), s.prev[wk.Name()], st)
		s.metrics.SetCacheUsage(wk.Name(), wk.CacheUsage())
		s.prev[wk.Name()] = st
	}
	s.statsMu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	for _, wk := range s.pool.Workers() {
		wk.ClearCache()
	}
	w.WriteHeader(http.StatusNoContent)
}

type cacheResizeReq struct {
	Bytes int `json:"bytes"`
}

func (s *Server) handleCacheResize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cacheResizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, wk := range s.pool.Workers() {
		wk.SetCacheCapacity(req.Bytes)
	}
	w.WriteHeader(http.StatusNoContent)
}
