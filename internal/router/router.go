// Package router implements the Router external collaborator: mapping
// topics onto logs via a stable 64-bit hash. The routing decision itself
// (which logs exist, which Control Tower instance owns which logs) is
// out of scope; this package only provides the hash-to-log assignment
// the core depends on.
package router

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AlexxNica/RocketSpeed/internal/model"
)

// ErrNoRoute is returned when a topic cannot be mapped to any log, e.g.
// because NumLogs is zero. Surfaced to callers as a synchronous reject.
var ErrNoRoute = errors.New("router: no log available for topic")

// Router maps topics to logs.
type Router interface {
	// Route returns the log a topic is assigned to.
	Route(topic model.TopicUUID) (model.LogID, error)
	// Version returns a monotonically increasing generation counter that
	// changes whenever the routing table is reconfigured.
	Version() uint64
	// MarkHostDown records that a storage host is unavailable, used by the
	// (out-of-scope) host-selection layer; the core never calls this.
	MarkHostDown(host string)
}

// HashRouter assigns each topic to one of a fixed set of logs via its
// stable xxh3-based TopicUUID.Hash(); the hash must stay stable across
// processes so two Control Tower instances route the same topic the
// same way.
type HashRouter struct {
	mu      sync.RWMutex
	logs    []model.LogID
	version uint64
	down    map[string]struct{}
}

// NewHashRouter builds a router distributing topics across numLogs
// sequential log ids starting at firstLogID.
func NewHashRouter(firstLogID model.LogID, numLogs int) *HashRouter {
	logs := make([]model.LogID, numLogs)
	for i := range logs {
		logs[i] = firstLogID + model.LogID(i)
	}
	return &HashRouter{logs: logs, down: make(map[string]struct{})}
}

// Route hashes topic and selects a log by modulo. Stable: the same topic
// always routes to the same log as long as Reconfigure has not been
// called.
func (r *HashRouter) Route(topic model.TopicUUID) (model.LogID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.logs) == 0 {
		return 0, ErrNoRoute
	}
	idx := topic.Hash() % uint64(len(r.logs))
	return r.logs[idx], nil
}

// Version returns the current routing generation.
func (r *HashRouter) Version() uint64 {
	return atomic.LoadUint64(&r.version)
}

// MarkHostDown records host as down. HashRouter's routing never consults
// that record: host selection is external to this module, and the method
// is kept to satisfy the Router interface real deployments implement
// against a service-discovery backed router.
func (r *HashRouter) MarkHostDown(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down[host] = struct{}{}
}

// Reconfigure replaces the set of logs, bumping Version(). Existing
// LogReaders are unaffected until their owning worker drains and
// resubscribes.
func (r *HashRouter) Reconfigure(logs []model.LogID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append([]model.LogID(nil), logs...)
	atomic.AddUint64(&r.version, 1)
}
