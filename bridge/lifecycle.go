package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/erpc/solbridge/chain"
	"github.com/erpc/solbridge/telemetry"
	"github.com/erpc/solbridge/util"
	"github.com/rs/zerolog"
)

type LifecycleState int32

const (
	StateStarting LifecycleState = iota
	StateListening
	StateStopping
	StateStopped
)

var lifecycleStates = []LifecycleState{StateStarting, StateListening, StateStopping, StateStopped}

func (s LifecycleState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// ProviderEngine is the provider chain as seen by the lifecycle.
type ProviderEngine interface {
	chain.Provider
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Lifecycle owns startup and shutdown ordering: the provider chain is started
// before the endpoint binds, and stopped only after the endpoint has drained.
type Lifecycle struct {
	logger *zerolog.Logger
	engine ProviderEngine
	server *HttpServer

	state    atomic.Int32
	listener net.Listener
	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

var _ StopScheduler = (*Lifecycle)(nil)

func NewLifecycle(logger *zerolog.Logger, engine ProviderEngine, server *HttpServer) *Lifecycle {
	lg := logger.With().Str("component", "lifecycle").Logger()
	l := &Lifecycle{
		logger: &lg,
		engine: engine,
		server: server,
		done:   make(chan struct{}),
	}
	l.setState(StateStarting)
	return l
}

func (l *Lifecycle) setState(s LifecycleState) {
	l.state.Store(int32(s))
	for _, st := range lifecycleStates {
		v := 0.0
		if st == s {
			v = 1
		}
		telemetry.MetricLifecycleState.WithLabelValues(st.String()).Set(v)
	}
	l.logger.Debug().Str("state", s.String()).Msg("lifecycle state changed")
}

func (l *Lifecycle) State() LifecycleState {
	return LifecycleState(l.state.Load())
}

// Done is closed once the endpoint is closed and the provider chain stopped.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Addr is the bound address, nil before Start succeeded.
func (l *Lifecycle) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Lifecycle) Start(ctx context.Context) error {
	if l.State() != StateStarting {
		return fmt.Errorf("lifecycle already started, state is %s", l.State())
	}
	if err := l.engine.Start(ctx); err != nil {
		l.finish()
		return fmt.Errorf("failed to start provider chain: %w", err)
	}

	ln, err := l.server.Listen()
	if err != nil {
		if serr := l.engine.Stop(ctx); serr != nil {
			l.logger.Warn().Err(serr).Msg("failed to stop provider chain after bind failure")
		}
		l.finish()
		return fmt.Errorf("failed to listen on %s: %w", l.server.server.Addr, err)
	}
	l.listener = ln
	l.setState(StateListening)

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error().Err(err).Msg("http server failed")
			util.OsExit(util.ExitCodeHttpServerFailed)
		}
	}()
	return nil
}

// ScheduleStop begins shutdown in the background and returns immediately.
// Only the first call has an effect.
func (l *Lifecycle) ScheduleStop() {
	l.stopOnce.Do(func() {
		l.setState(StateStopping)
		go l.shutdown()
	})
}

// Stop schedules shutdown and waits for it to complete or ctx to end.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.ScheduleStop()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lifecycle) shutdown() {
	ctx := context.Background()
	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Error().Err(err).Msg("http server forced to shutdown")
	} else {
		l.logger.Info().Msg("http server stopped")
	}
	if err := l.engine.Stop(ctx); err != nil {
		l.logger.Error().Err(err).Msg("failed to stop provider chain")
	}
	l.finish()
}

func (l *Lifecycle) finish() {
	l.doneOnce.Do(func() {
		l.setState(StateStopped)
		close(l.done)
	})
}
