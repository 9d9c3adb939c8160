package chain

import (
	"encoding/json"

	"github.com/erpc/solbridge/common"
	"github.com/rs/zerolog"
)

type JsonRpcRequest struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      interface{}   `json:"id,omitempty"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type JsonRpcResponse struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JsonRpcError   `json:"error,omitempty"`
}

type JsonRpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func NewJsonRpcResult(id interface{}, result interface{}) (*JsonRpcResponse, error) {
	raw, err := common.SonicCfg.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &JsonRpcResponse{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// AsError converts a json-rpc level error into the bridge error family.
func (r *JsonRpcResponse) AsError() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return common.NewErrJsonRpcException(r.Error.Code, r.Error.Message, r.Error.Data)
}

// DecodeResult unmarshals the result member into out.
func (r *JsonRpcResponse) DecodeResult(out interface{}) error {
	if len(r.Result) == 0 {
		return common.SonicCfg.Unmarshal([]byte("null"), out)
	}
	return common.SonicCfg.Unmarshal(r.Result, out)
}

func (r *JsonRpcRequest) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", r.Method).Interface("params", r.Params).Interface("id", r.ID)
}

func (r *JsonRpcResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Interface("id", r.ID)
	if len(r.Result) > 0 {
		e.RawJSON("result", r.Result)
	}
	if r.Error != nil {
		e.Interface("error", r.Error)
	}
}
