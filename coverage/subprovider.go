package coverage

import (
	"context"
	"fmt"

	"github.com/erpc/solbridge/chain"
	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

var traceConfig = map[string]interface{}{
	"disableStorage": true,
	"disableMemory":  true,
	"enableMemory":   false,
}

// Subprovider traces the calls and transactions passing through the chain and
// feeds the executed program counters to a Collector.
type Subprovider struct {
	logger       *zerolog.Logger
	fs           afero.Fs
	collector    *Collector
	artifactsDir string
	traceMethods []string
	defaultFrom  ethcommon.Address

	codeLookups singleflight.Group
}

var _ chain.Subprovider = (*Subprovider)(nil)
var _ chain.Starter = (*Subprovider)(nil)

func NewSubprovider(logger *zerolog.Logger, fs afero.Fs, cfg *common.CoverageConfig) (*Subprovider, error) {
	if !ethcommon.IsHexAddress(cfg.DefaultFromAddress) {
		return nil, common.NewErrInvalidConfig(fmt.Sprintf("coverage.defaultFromAddress %q is not a hex address", cfg.DefaultFromAddress))
	}
	lg := logger.With().Str("component", "coverage").Logger()
	adapter := NewSolCompilerArtifactAdapter(&lg, fs, cfg.ArtifactsDir, cfg.ContractsDir)
	return &Subprovider{
		logger:       &lg,
		fs:           fs,
		collector:    NewCollector(&lg, fs, adapter, cfg.ReportPath),
		artifactsDir: cfg.ArtifactsDir,
		traceMethods: cfg.TraceMethods,
		defaultFrom:  ethcommon.HexToAddress(cfg.DefaultFromAddress),
	}, nil
}

func (s *Subprovider) Id() string {
	return "coverage"
}

func (s *Subprovider) Collector() *Collector {
	return s.collector
}

// Start only warns about a missing artifacts directory; contracts may be
// compiled after the bridge is up.
func (s *Subprovider) Start(ctx context.Context) error {
	if s.artifactsDir == "" {
		s.logger.Warn().Msg("no artifacts directory configured, coverage report will be empty")
		return nil
	}
	if ok, err := afero.DirExists(s.fs, s.artifactsDir); err != nil || !ok {
		s.logger.Warn().Err(err).Str("artifactsDir", s.artifactsDir).Msg("artifacts directory does not exist yet")
	}
	s.logger.Debug().Strs("traceMethods", s.traceMethods).Msg("coverage instrumentation active")
	return nil
}

func (s *Subprovider) WriteCoverage(ctx context.Context) error {
	return s.collector.WriteCoverage(ctx)
}

func (s *Subprovider) HandleRequest(ctx context.Context, req *chain.JsonRpcRequest, next chain.NextFunc) (*chain.JsonRpcResponse, error) {
	switch req.Method {
	case "eth_call", "eth_estimateGas":
		req = s.withDefaultFrom(req)
	}

	resp, err := next(ctx, req)
	if err != nil || resp == nil || resp.Error != nil || !common.MatchesAny(s.traceMethods, req.Method) {
		return resp, err
	}

	var traceErr error
	switch req.Method {
	case "eth_call":
		traceErr = s.traceCall(ctx, req, next)
	case "eth_sendRawTransaction":
		traceErr = s.traceTransaction(ctx, req, next)
	default:
		return resp, nil
	}

	if traceErr != nil {
		telemetry.MetricCoverageTraceTotal.WithLabelValues(req.Method, "failure").Inc()
		s.logger.Warn().Err(common.NewErrCoverageTrace(req.Method, traceErr)).Msg("could not collect coverage, request result is unaffected")
	} else {
		telemetry.MetricCoverageTraceTotal.WithLabelValues(req.Method, "success").Inc()
	}
	return resp, nil
}

func (s *Subprovider) withDefaultFrom(req *chain.JsonRpcRequest) *chain.JsonRpcRequest {
	if len(req.Params) == 0 {
		return req
	}
	call, err := asCallObject(req.Params[0])
	if err != nil || call.From != nil {
		return req
	}
	cp := *req
	cp.Params = append([]interface{}{call.WithDefaultFrom(s.defaultFrom)}, req.Params[1:]...)
	return &cp
}

func asCallObject(v interface{}) (*chain.CallObject, error) {
	switch c := v.(type) {
	case *chain.CallObject:
		return c, nil
	case chain.CallObject:
		return &c, nil
	}
	raw, err := common.SonicCfg.Marshal(v)
	if err != nil {
		return nil, err
	}
	call := &chain.CallObject{}
	if err := common.SonicCfg.Unmarshal(raw, call); err != nil {
		return nil, err
	}
	return call, nil
}

func (s *Subprovider) traceCall(ctx context.Context, req *chain.JsonRpcRequest, next chain.NextFunc) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("eth_call without a call object")
	}
	call, err := asCallObject(req.Params[0])
	if err != nil {
		return err
	}
	block := "latest"
	if len(req.Params) > 1 {
		if tag, ok := req.Params[1].(string); ok && tag != "" {
			block = tag
		}
	}

	result, err := s.trace(ctx, next, req.ID, "debug_traceCall", call, block, traceConfig)
	if err != nil {
		return err
	}
	if call.To == nil {
		return s.record(ctx, next, frame{kind: frameCreation}, call.CallData(), block, result)
	}
	return s.record(ctx, next, frame{kind: frameAddress, address: *call.To}, nil, block, result)
}

func (s *Subprovider) traceTransaction(ctx context.Context, req *chain.JsonRpcRequest, next chain.NextFunc) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("eth_sendRawTransaction without a transaction")
	}
	rawHex, ok := req.Params[0].(string)
	if !ok {
		return fmt.Errorf("raw transaction is %T, expected hex string", req.Params[0])
	}
	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		return err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return err
	}

	result, err := s.trace(ctx, next, req.ID, "debug_traceTransaction", tx.Hash().Hex(), traceConfig)
	if err != nil {
		return err
	}
	if tx.To() == nil {
		return s.record(ctx, next, frame{kind: frameCreation}, tx.Data(), "latest", result)
	}
	return s.record(ctx, next, frame{kind: frameAddress, address: *tx.To()}, nil, "latest", result)
}

func (s *Subprovider) trace(ctx context.Context, next chain.NextFunc, id interface{}, method string, params ...interface{}) (*TraceResult, error) {
	resp, err := next(ctx, &chain.JsonRpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	result := &TraceResult{}
	if err := resp.DecodeResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Subprovider) record(ctx context.Context, next chain.NextFunc, top frame, initCode []byte, block string, result *TraceResult) error {
	hits, err := collectHits(top, result.StructLogs)
	if err != nil {
		return err
	}
	if hits.empty() {
		return nil
	}
	if len(hits.creation) > 0 {
		s.collector.Record(initCode, true, hits.creation)
	}
	for addr, pcs := range hits.byAddress {
		code, err := s.getCode(ctx, next, addr, block)
		if err != nil {
			return err
		}
		// precompiles and accounts without code
		if len(code) == 0 {
			continue
		}
		s.collector.Record(code, false, pcs)
	}
	return nil
}

func (s *Subprovider) getCode(ctx context.Context, next chain.NextFunc, addr ethcommon.Address, block string) ([]byte, error) {
	v, err, _ := s.codeLookups.Do(addr.Hex()+"@"+block, func() (interface{}, error) {
		resp, err := next(ctx, &chain.JsonRpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "eth_getCode",
			Params:  []interface{}{addr.Hex(), block},
		})
		if err != nil {
			return nil, err
		}
		if err := resp.AsError(); err != nil {
			return nil, err
		}
		var code hexutil.Bytes
		if err := resp.DecodeResult(&code); err != nil {
			return nil, err
		}
		return []byte(code), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
