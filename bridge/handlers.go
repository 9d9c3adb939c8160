package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/erpc/solbridge/chain"
	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Handler implements one bridge method. data is the raw "data" member of the
// request envelope.
type Handler func(ctx context.Context, bc *Context, data json.RawMessage) (interface{}, error)

type MethodTable map[Method]Handler

// NewMethodTable checks that handlers covers exactly the methods of
// AllMethods.
func NewMethodTable(handlers map[Method]Handler) (MethodTable, error) {
	var missing, unexpected []string
	for _, m := range AllMethods {
		if h, ok := handlers[m]; !ok || h == nil {
			missing = append(missing, string(m))
		}
	}
	for m := range handlers {
		if _, ok := ParseMethod(string(m)); !ok {
			unexpected = append(unexpected, string(m))
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, common.NewErrIncompleteMethodTable(missing, unexpected)
	}

	table := make(MethodTable, len(handlers))
	for m, h := range handlers {
		table[m] = h
	}
	return table, nil
}

func DefaultHandlers() map[Method]Handler {
	return map[Method]Handler{
		MethodPendingNonceAt:  handlePendingNonceAt,
		MethodSendTransaction: handleSendTransaction,
		MethodEstimateGas:     handleEstimateGas,
		MethodCall:            handleCall,
		MethodWriteCoverage:   handleWriteCoverage,
		MethodClose:           handleClose,
	}
}

func (t MethodTable) Lookup(name string) (Method, Handler, error) {
	m, ok := ParseMethod(name)
	if !ok {
		return "", nil, common.NewErrUnknownMethod(name)
	}
	return m, t[m], nil
}

func decodeData(method Method, data json.RawMessage, out interface{}) error {
	if util.IsBlankOrNull(data) {
		return common.NewErrInvalidMethodData(string(method), fmt.Errorf("data is required"))
	}
	if err := common.SonicCfg.Unmarshal(data, out); err != nil {
		return common.NewErrInvalidMethodData(string(method), err)
	}
	return nil
}

func decodeQuantity(resp *chain.JsonRpcResponse) (uint64, error) {
	var hex string
	if err := resp.DecodeResult(&hex); err != nil {
		return 0, common.NewErrEndpointMalformedResponse(err, string(resp.Result))
	}
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, common.NewErrEndpointMalformedResponse(err, string(resp.Result))
	}
	return v, nil
}

func handlePendingNonceAt(ctx context.Context, bc *Context, data json.RawMessage) (interface{}, error) {
	var address string
	if err := decodeData(MethodPendingNonceAt, data, &address); err != nil {
		return nil, err
	}
	if !ethcommon.IsHexAddress(address) {
		return nil, common.NewErrInvalidMethodData(string(MethodPendingNonceAt), fmt.Errorf("%q is not a hex address", address))
	}

	resp, err := bc.Provider.Send(ctx, "eth_getTransactionCount", address, "pending")
	if err != nil {
		return nil, err
	}
	return decodeQuantity(resp)
}

func handleSendTransaction(ctx context.Context, bc *Context, data json.RawMessage) (interface{}, error) {
	var rawTx string
	if err := decodeData(MethodSendTransaction, data, &rawTx); err != nil {
		return nil, err
	}
	if b, err := hexutil.Decode(rawTx); err != nil || len(b) == 0 {
		return nil, common.NewErrInvalidMethodData(string(MethodSendTransaction), fmt.Errorf("transaction must be 0x-prefixed hex"))
	}

	resp, err := bc.Provider.Send(ctx, "eth_sendRawTransaction", rawTx)
	if err != nil {
		return nil, err
	}
	var hash string
	if err := resp.DecodeResult(&hash); err != nil {
		return nil, common.NewErrEndpointMalformedResponse(err, string(resp.Result))
	}
	return hash, nil
}

func handleEstimateGas(ctx context.Context, bc *Context, data json.RawMessage) (interface{}, error) {
	call := &chain.CallObject{}
	if err := decodeData(MethodEstimateGas, data, call); err != nil {
		return nil, err
	}

	resp, err := bc.Provider.Send(ctx, "eth_estimateGas", call)
	if err != nil {
		return nil, err
	}
	return decodeQuantity(resp)
}

type callData struct {
	Call  *chain.CallObject `json:"call"`
	Block json.RawMessage   `json:"block"`
}

func handleCall(ctx context.Context, bc *Context, data json.RawMessage) (interface{}, error) {
	var in callData
	if err := decodeData(MethodCall, data, &in); err != nil {
		return nil, err
	}
	if in.Call == nil {
		return nil, common.NewErrInvalidMethodData(string(MethodCall), fmt.Errorf("call object is required"))
	}
	block, err := chain.NormalizeBlockTag(in.Block)
	if err != nil {
		return nil, common.NewErrInvalidMethodData(string(MethodCall), err)
	}

	resp, err := bc.Provider.Send(ctx, "eth_call", in.Call, block)
	if err != nil {
		return nil, err
	}
	var result string
	if err := resp.DecodeResult(&result); err != nil {
		return nil, common.NewErrEndpointMalformedResponse(err, string(resp.Result))
	}
	return result, nil
}

func handleWriteCoverage(ctx context.Context, bc *Context, _ json.RawMessage) (interface{}, error) {
	if err := bc.Coverage.WriteCoverage(ctx); err != nil {
		return nil, err
	}
	return true, nil
}

// handleClose acknowledges first; shutdown starts once the acknowledgment
// has been flushed to the caller.
func handleClose(ctx context.Context, bc *Context, _ json.RawMessage) (interface{}, error) {
	if !OnResponseWritten(ctx, bc.Lifecycle.ScheduleStop) {
		bc.Lifecycle.ScheduleStop()
	}
	return true, nil
}
