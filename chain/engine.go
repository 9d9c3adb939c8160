package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/erpc/solbridge/common"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type EngineState int32

const (
	EngineStateIdle EngineState = iota
	EngineStateRunning
	EngineStateStopped
)

func (s EngineState) String() string {
	switch s {
	case EngineStateIdle:
		return "idle"
	case EngineStateRunning:
		return "running"
	case EngineStateStopped:
		return "stopped"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// Engine runs json-rpc requests through an ordered list of subproviders.
// It is safe for concurrent use once started; subproviders are expected to
// tolerate concurrent calls themselves.
type Engine struct {
	logger *zerolog.Logger

	mu           sync.Mutex
	subproviders []Subprovider
	state        atomic.Int32
	nextId       atomic.Int64
}

var _ Provider = (*Engine)(nil)

func NewEngine(logger *zerolog.Logger) *Engine {
	lg := logger.With().Str("component", "providerEngine").Logger()
	return &Engine{logger: &lg}
}

// AddProvider appends a subprovider to the end of the chain. The chain is
// frozen once the engine is started.
func (e *Engine) AddProvider(sp Subprovider) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.State(); st != EngineStateIdle {
		return fmt.Errorf("cannot add subprovider %s to a %s engine", sp.Id(), st)
	}
	e.subproviders = append(e.subproviders, sp)
	return nil
}

func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// Start activates every subprovider in chain order. If one fails, the ones
// already started are stopped again and the engine stays idle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.State(); st != EngineStateIdle {
		return fmt.Errorf("cannot start a %s engine", st)
	}
	if len(e.subproviders) == 0 {
		return errors.New("provider chain has no subproviders")
	}

	for i, sp := range e.subproviders {
		starter, ok := sp.(Starter)
		if !ok {
			continue
		}
		if err := starter.Start(ctx); err != nil {
			e.stopFrom(ctx, i-1)
			return fmt.Errorf("failed to start subprovider %s: %w", sp.Id(), err)
		}
	}

	e.state.Store(int32(EngineStateRunning))
	e.logger.Info().Int("subproviders", len(e.subproviders)).Msg("provider chain started")
	return nil
}

// Stop deactivates subproviders in reverse order. Stopping twice is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CompareAndSwap(int32(EngineStateRunning), int32(EngineStateStopped)) {
		return nil
	}
	err := e.stopFrom(ctx, len(e.subproviders)-1)
	e.logger.Info().Msg("provider chain stopped")
	return err
}

func (e *Engine) stopFrom(ctx context.Context, last int) error {
	var errs []error
	for i := last; i >= 0; i-- {
		stopper, ok := e.subproviders[i].(Stopper)
		if !ok {
			continue
		}
		if err := stopper.Stop(ctx); err != nil {
			e.logger.Warn().Err(err).Str("subprovider", e.subproviders[i].Id()).Msg("failed to stop subprovider")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send builds a json-rpc request and runs it through the chain. A json-rpc
// error from the node is returned as *common.ErrJsonRpcException.
func (e *Engine) Send(ctx context.Context, method string, params ...interface{}) (*JsonRpcResponse, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := &JsonRpcRequest{
		JSONRPC: "2.0",
		ID:      e.nextId.Add(1),
		Method:  method,
		Params:  params,
	}
	resp, err := e.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if rpcErr := resp.AsError(); rpcErr != nil {
		return nil, rpcErr
	}
	return resp, nil
}

// SendRequest runs a prepared request through the chain and returns the raw
// response, json-rpc errors included.
func (e *Engine) SendRequest(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	if st := e.State(); st != EngineStateRunning {
		return nil, common.NewErrProviderNotRunning(st.String())
	}

	ctx, span := common.StartSpan(ctx, "Engine.SendRequest", trace.WithAttributes(
		attribute.String("request.method", req.Method),
	))
	defer span.End()

	resp, err := e.handleAt(ctx, 0, req)
	if err != nil {
		common.SetTraceSpanError(span, err)
	}
	return resp, err
}

func (e *Engine) handleAt(ctx context.Context, idx int, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	if idx >= len(e.subproviders) {
		return nil, common.NewErrUnhandledRequest(req.Method)
	}
	next := func(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
		return e.handleAt(ctx, idx+1, req)
	}
	return e.subproviders[idx].HandleRequest(ctx, req, next)
}
