package bridge

import (
	"context"
	"sync"

	"github.com/erpc/solbridge/chain"
	"github.com/rs/zerolog"
)

// CoverageWriter flushes the coverage accumulated so far.
type CoverageWriter interface {
	WriteCoverage(ctx context.Context) error
}

// StopScheduler initiates shutdown without waiting for it.
type StopScheduler interface {
	ScheduleStop()
}

// Context carries the shared collaborators every method handler works with.
type Context struct {
	Provider  chain.Provider
	Coverage  CoverageWriter
	Lifecycle StopScheduler
	Logger    *zerolog.Logger
}

type noopCoverageWriter struct{}

func (noopCoverageWriter) WriteCoverage(ctx context.Context) error {
	return nil
}

// NoopCoverageWriter is used when coverage instrumentation is disabled.
var NoopCoverageWriter CoverageWriter = noopCoverageWriter{}

type responseHooksKey struct{}

type responseHooks struct {
	mu    sync.Mutex
	hooks []func()
}

func (h *responseHooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

func (h *responseHooks) run() {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func withResponseHooks(ctx context.Context) (context.Context, *responseHooks) {
	h := &responseHooks{}
	return context.WithValue(ctx, responseHooksKey{}, h), h
}

// OnResponseWritten registers fn to run once the response of the current
// request has been written and flushed. It reports false when ctx does not
// belong to a request served by HttpServer.
func OnResponseWritten(ctx context.Context, fn func()) bool {
	h, ok := ctx.Value(responseHooksKey{}).(*responseHooks)
	if !ok {
		return false
	}
	h.add(fn)
	return true
}
