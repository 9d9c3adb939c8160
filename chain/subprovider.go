package chain

import "context"

// NextFunc hands a request to the rest of the chain and returns what the
// downstream subproviders answered.
type NextFunc func(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error)

// Subprovider is one delegate in the provider chain. It may answer a request
// itself, rewrite it before calling next, or inspect the response next
// returned.
type Subprovider interface {
	Id() string
	HandleRequest(ctx context.Context, req *JsonRpcRequest, next NextFunc) (*JsonRpcResponse, error)
}

// Starter is implemented by subproviders that need to be activated before
// the first request.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by subproviders holding resources to release.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Provider is the narrow view of the chain the bridge handlers depend on.
type Provider interface {
	Send(ctx context.Context, method string, params ...interface{}) (*JsonRpcResponse, error)
}
