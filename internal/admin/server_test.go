package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlexxNica/RocketSpeed/internal/config"
	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage/memlog"
	"github.com/AlexxNica/RocketSpeed/internal/metrics"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/AlexxNica/RocketSpeed/internal/tower"
	"github.com/AlexxNica/RocketSpeed/internal/transport/ssetransport"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *tower.Pool) {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	route := router.NewHashRouter(1, 1)
	sse := ssetransport.New()
	log := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	storage := memlog.New(true)
	cache := datacache.New(0, 1024, 10, false)
	w := tower.NewWorker("w0", topictailer.Options{}, storage, route, sse, cache, log, 10*time.Millisecond, 1)
	pool := tower.NewPool(route, []*tower.Worker{w})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pool.Run(ctx)

	cfg := config.Default()
	s := New(cfg, pool, sse, metrics.New(), db, log)
	return s, pool
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "w0")
}

func TestRequestIDHeaderIsStamped(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleCacheClearAndResize(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleCacheClear(rec, httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/resize", strings.NewReader(`{"bytes": 4096}`))
	s.handleCacheResize(rec2, req)
	require.Equal(t, http.StatusNoContent, rec2.Code)
}
