package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/telemetry"
	"github.com/erpc/solbridge/util"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type requestEnvelope struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

// HttpServer serves the bridge protocol: every request, whatever its verb or
// path, carries a {"method","data"} envelope and gets the JSON encoded result
// with status 200, or the JSON encoded error with status 500.
type HttpServer struct {
	config *common.ServerConfig
	server *http.Server
	table  MethodTable
	bctx   *Context
	logger *zerolog.Logger
}

func NewHttpServer(logger *zerolog.Logger, cfg *common.ServerConfig, table MethodTable, bctx *Context) *HttpServer {
	lg := logger.With().Str("component", "httpServer").Logger()
	srv := &HttpServer{
		config: cfg,
		table:  table,
		bctx:   bctx,
		logger: &lg,
	}
	srv.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HttpHost, cfg.HttpPort),
		Handler: srv,
	}
	return srv
}

func (s *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startedAt := time.Now()
	ctx := common.ExtractHTTPRequestTraceContext(r)
	ctx, span := common.StartSpan(ctx, "HttpServer.handleRequest")
	defer span.End()

	ctx, hooks := withResponseHooks(ctx)
	method, result, err := s.dispatch(ctx, r)

	span.SetAttributes(attribute.String("bridge.method", method))
	telemetry.MetricBridgeRequestTotal.WithLabelValues(method).Inc()

	if err == nil {
		var body []byte
		body, err = common.SonicCfg.Marshal(result)
		if err == nil {
			s.logger.Debug().Str("method", method).Bytes("result", body).Dur("took", time.Since(startedAt)).Msg("request handled")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, werr := w.Write(body); werr != nil {
				s.logger.Debug().Err(werr).Str("method", method).Msg("failed to write response body")
			}
		}
	}
	if err != nil {
		common.SetTraceSpanError(span, err)
		telemetry.MetricBridgeRequestErrorTotal.WithLabelValues(method, string(common.ErrorCodeOf(err))).Inc()
		handleErrorResponse(s.logger, method, err, w)
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	telemetry.MetricBridgeRequestDuration.WithLabelValues(method).Observe(time.Since(startedAt).Seconds())
	hooks.run()
}

// dispatch returns the method label used for logs and metrics along with the
// outcome of the request.
func (s *HttpServer) dispatch(ctx context.Context, r *http.Request) (string, interface{}, error) {
	body, err := util.ReadAll(r.Body, util.DefaultReadChunkSize)
	if err != nil {
		return "unknown", nil, common.NewErrInvalidRequest(err)
	}

	var env requestEnvelope
	if err := common.SonicCfg.Unmarshal(body, &env); err != nil {
		return "unknown", nil, common.NewErrInvalidRequest(err)
	}
	if env.Method == "" {
		return "unknown", nil, common.NewErrInvalidRequest(errors.New("method is required"))
	}

	method, handler, err := s.table.Lookup(env.Method)
	if err != nil {
		return "unknown", nil, err
	}

	s.logger.Debug().Str("method", method.String()).RawJSON("data", rawOrNull(env.Data)).Msg("received bridge request")
	ctx, span := common.StartSpan(ctx, "Handler."+method.String(), trace.WithAttributes(
		attribute.String("bridge.method", method.String()),
	))
	defer span.End()

	result, err := s.invoke(ctx, method, handler, env.Data)
	if err != nil {
		common.SetTraceSpanError(span, err)
	}
	return method.String(), result, err
}

func (s *HttpServer) invoke(ctx context.Context, method Method, handler Handler, data json.RawMessage) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.MetricUnexpectedPanicTotal.WithLabelValues(method.String()).Inc()
			s.logger.Error().
				Str("method", method.String()).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("unexpected panic in method handler")
			result = nil
			err = common.NewErrHandlerPanic(method.String(), rec)
		}
	}()
	return handler(ctx, s.bctx, data)
}

func rawOrNull(data json.RawMessage) []byte {
	if util.IsBlankOrNull(data) {
		return []byte("null")
	}
	return data
}

func handleErrorResponse(logger *zerolog.Logger, method string, err error, hrw http.ResponseWriter) {
	if common.HasErrorCode(err, common.ErrCodeInvalidRequest, common.ErrCodeUnknownMethod, common.ErrCodeInvalidMethodData) {
		logger.Debug().Err(err).Str("method", method).Msg("rejected bridge request")
	} else {
		logger.Warn().Err(err).Str("method", method).Msg("bridge request failed")
	}

	body, merr := common.SonicCfg.Marshal(common.ToStandardError(err))
	if merr != nil {
		logger.Error().Err(merr).Msg("failed to encode error response body")
		body = []byte(`{"code":"ErrUnknown","message":"failed to encode error"}`)
	}

	hrw.Header().Set("Content-Type", "application/json")
	hrw.WriteHeader(http.StatusInternalServerError)
	if _, werr := hrw.Write(body); werr != nil {
		logger.Debug().Err(werr).Msg("failed to write error response body")
	}
}

// Listen binds the configured address without serving it yet.
func (s *HttpServer) Listen() (net.Listener, error) {
	s.logger.Info().Msgf("starting http server on %s", s.server.Addr)
	return net.Listen("tcp", s.server.Addr)
}

func (s *HttpServer) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}
