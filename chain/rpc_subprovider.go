package chain

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/telemetry"
	"github.com/erpc/solbridge/util"
	"github.com/failsafe-go/failsafe-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RpcSubprovider is the terminal delegate of the chain: it answers every
// request by forwarding it to a json-rpc node over http.
type RpcSubprovider struct {
	Url *url.URL

	logger     *zerolog.Logger
	httpClient *http.Client
	policies   []failsafe.Policy[*JsonRpcResponse]
}

var _ Subprovider = (*RpcSubprovider)(nil)

func NewRpcSubprovider(logger *zerolog.Logger, cfg *common.UpstreamConfig) (*RpcSubprovider, error) {
	parsedUrl, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	policies, err := CreateFailSafePolicies("upstream", cfg.Failsafe)
	if err != nil {
		return nil, err
	}

	lg := logger.With().Str("component", "rpcSubprovider").Str("endpoint", util.RedactEndpoint(cfg.Endpoint)).Logger()
	sp := &RpcSubprovider{
		Url:      parsedUrl,
		logger:   &lg,
		policies: policies,
	}

	if util.IsTest() {
		sp.httpClient = &http.Client{}
	} else {
		sp.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 32,
			},
		}
	}

	return sp, nil
}

func (r *RpcSubprovider) Id() string {
	return "rpc"
}

func (r *RpcSubprovider) Stop(ctx context.Context) error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func (r *RpcSubprovider) HandleRequest(ctx context.Context, req *JsonRpcRequest, _ NextFunc) (*JsonRpcResponse, error) {
	telemetry.MetricUpstreamRequestTotal.WithLabelValues(req.Method).Inc()

	var resp *JsonRpcResponse
	var err error
	if len(r.policies) == 0 {
		resp, err = r.sendRequest(ctx, req)
	} else {
		resp, err = failsafe.NewExecutor[*JsonRpcResponse](r.policies...).
			WithContext(ctx).
			GetWithExecution(func(exec failsafe.Execution[*JsonRpcResponse]) (*JsonRpcResponse, error) {
				return r.sendRequest(exec.Context(), req)
			})
		err = TranslateFailsafeError(err)
	}

	if err != nil {
		telemetry.MetricUpstreamErrorTotal.WithLabelValues(req.Method, string(common.ErrorCodeOf(err))).Inc()
	} else if resp.Error != nil {
		telemetry.MetricUpstreamErrorTotal.WithLabelValues(req.Method, string(common.ErrCodeJsonRpcException)).Inc()
	}
	return resp, err
}

func (r *RpcSubprovider) sendRequest(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	ctx, span := common.StartSpan(ctx, "RpcSubprovider.sendRequest", trace.WithAttributes(
		attribute.String("request.method", req.Method),
	))
	defer span.End()

	requestBody, err := common.SonicCfg.Marshal(req)
	if err != nil {
		common.SetTraceSpanError(span, err)
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Url.String(), bytes.NewReader(requestBody))
	if err != nil {
		common.SetTraceSpanError(span, err)
		return nil, &common.BaseError{
			Code:    "ErrHttp",
			Message: err.Error(),
			Details: map[string]interface{}{
				"url":    util.RedactEndpoint(r.Url.String()),
				"method": req.Method,
			},
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	r.logger.Debug().Object("request", req).Msg("sending json-rpc request to node")

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && errors.Is(err, cause) {
			err = cause
		}
		err = common.NewErrEndpointTransportFailure(r.Url, err)
		common.SetTraceSpanError(span, err)
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := util.ReadAll(httpResp.Body, util.DefaultReadChunkSize)
	if err != nil {
		err = common.NewErrEndpointTransportFailure(r.Url, err)
		common.SetTraceSpanError(span, err)
		return nil, err
	}

	var jrResp JsonRpcResponse
	uerr := common.SonicCfg.Unmarshal(respBody, &jrResp)
	switch {
	case httpResp.StatusCode >= 300 && (uerr != nil || jrResp.Error == nil):
		err = common.NewErrEndpointServerSideException(httpResp.StatusCode, string(respBody))
	case uerr != nil:
		err = common.NewErrEndpointMalformedResponse(uerr, string(respBody))
	}
	if err != nil {
		r.logger.Debug().Err(err).Int("statusCode", httpResp.StatusCode).Msg("unusable json-rpc response from node")
		common.SetTraceSpanError(span, err)
		return nil, err
	}

	r.logger.Debug().Int("statusCode", httpResp.StatusCode).Object("response", &jrResp).Msg("received json-rpc response from node")
	return &jrResp, nil
}
