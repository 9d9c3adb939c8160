package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

//
// Base Types
//

type ErrorCode string

type BaseError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"cause,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *BaseError) Unwrap() error {
	return e.Cause
}

func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s -> %s", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) CodeChain() string {
	var be StandardError
	if e.Cause != nil && errors.As(e.Cause, &be) {
		return fmt.Sprintf("%s <- %s", e.Code, be.CodeChain())
	}
	return string(e.Code)
}

func (e *BaseError) ErrorCode() ErrorCode {
	return e.Code
}

func (e *BaseError) HasCode(codes ...ErrorCode) bool {
	for _, code := range codes {
		if e.Code == code {
			return true
		}
	}
	var be StandardError
	if e.Cause != nil && errors.As(e.Cause, &be) {
		return be.HasCode(codes...)
	}
	return false
}

// MarshalJSON keeps plain Go causes readable: their message is emitted as a
// string instead of the empty object encoding/json would produce.
func (e *BaseError) MarshalJSON() ([]byte, error) {
	var cause interface{}
	if e.Cause != nil {
		if _, ok := e.Cause.(json.Marshaler); ok {
			cause = e.Cause
		} else {
			cause = e.Cause.Error()
		}
	}
	return SonicCfg.Marshal(struct {
		Code    ErrorCode              `json:"code"`
		Message string                 `json:"message"`
		Cause   interface{}            `json:"cause,omitempty"`
		Details map[string]interface{} `json:"details,omitempty"`
	}{
		Code:    e.Code,
		Message: e.Message,
		Cause:   cause,
		Details: e.Details,
	})
}

type StandardError interface {
	error
	ErrorCode() ErrorCode
	HasCode(codes ...ErrorCode) bool
	CodeChain() string
}

func HasErrorCode(err error, codes ...ErrorCode) bool {
	var be StandardError
	if errors.As(err, &be) {
		return be.HasCode(codes...)
	}
	return false
}

// ErrorCodeOf returns the outermost bridge error code of err, or ErrUnknown.
func ErrorCodeOf(err error) ErrorCode {
	var be StandardError
	if errors.As(err, &be) {
		return be.ErrorCode()
	}
	return ErrCodeUnknown
}

// ToStandardError wraps arbitrary errors so they always serialize with a code.
// Context added around a bridge error with %w is kept as the message and the
// bridge error becomes the cause.
func ToStandardError(err error) StandardError {
	if se, ok := err.(StandardError); ok {
		return se
	}
	var be StandardError
	if errors.As(err, &be) {
		return &BaseError{
			Code:    be.ErrorCode(),
			Message: strings.TrimSuffix(err.Error(), ": "+be.Error()),
			Cause:   be,
		}
	}
	return &BaseError{
		Code:    ErrCodeUnknown,
		Message: "unexpected bridge error",
		Cause:   err,
	}
}

const ErrCodeUnknown ErrorCode = "ErrUnknown"

//
// Dispatcher Errors
//

type ErrInvalidRequest struct{ BaseError }

const ErrCodeInvalidRequest ErrorCode = "ErrInvalidRequest"

var NewErrInvalidRequest = func(cause error) error {
	return &ErrInvalidRequest{
		BaseError{
			Code:    ErrCodeInvalidRequest,
			Message: "invalid bridge request envelope",
			Cause:   cause,
		},
	}
}

type ErrUnknownMethod struct{ BaseError }

const ErrCodeUnknownMethod ErrorCode = "ErrUnknownMethod"

var NewErrUnknownMethod = func(method string) error {
	return &ErrUnknownMethod{
		BaseError{
			Code:    ErrCodeUnknownMethod,
			Message: "method is not supported by the bridge",
			Details: map[string]interface{}{
				"method": method,
			},
		},
	}
}

type ErrInvalidMethodData struct{ BaseError }

const ErrCodeInvalidMethodData ErrorCode = "ErrInvalidMethodData"

var NewErrInvalidMethodData = func(method string, cause error) error {
	return &ErrInvalidMethodData{
		BaseError{
			Code:    ErrCodeInvalidMethodData,
			Message: "data does not match the shape expected by the method",
			Cause:   cause,
			Details: map[string]interface{}{
				"method": method,
			},
		},
	}
}

type ErrHandlerPanic struct{ BaseError }

const ErrCodeHandlerPanic ErrorCode = "ErrHandlerPanic"

var NewErrHandlerPanic = func(method string, recovered interface{}) error {
	return &ErrHandlerPanic{
		BaseError{
			Code:    ErrCodeHandlerPanic,
			Message: "method handler panicked",
			Details: map[string]interface{}{
				"method": method,
				"panic":  fmt.Sprintf("%v", recovered),
			},
		},
	}
}

type ErrIncompleteMethodTable struct{ BaseError }

const ErrCodeIncompleteMethodTable ErrorCode = "ErrIncompleteMethodTable"

var NewErrIncompleteMethodTable = func(missing, unexpected []string) error {
	return &ErrIncompleteMethodTable{
		BaseError{
			Code:    ErrCodeIncompleteMethodTable,
			Message: "method table does not match the set of supported methods",
			Details: map[string]interface{}{
				"missing":    missing,
				"unexpected": unexpected,
			},
		},
	}
}

//
// Provider Chain Errors
//

type ErrProviderNotRunning struct{ BaseError }

const ErrCodeProviderNotRunning ErrorCode = "ErrProviderNotRunning"

var NewErrProviderNotRunning = func(state string) error {
	return &ErrProviderNotRunning{
		BaseError{
			Code:    ErrCodeProviderNotRunning,
			Message: "provider chain is not running",
			Details: map[string]interface{}{
				"state": state,
			},
		},
	}
}

type ErrUnhandledRequest struct{ BaseError }

const ErrCodeUnhandledRequest ErrorCode = "ErrUnhandledRequest"

var NewErrUnhandledRequest = func(method string) error {
	return &ErrUnhandledRequest{
		BaseError{
			Code:    ErrCodeUnhandledRequest,
			Message: "no subprovider in the chain answered the request",
			Details: map[string]interface{}{
				"method": method,
			},
		},
	}
}

type ErrJsonRpcException struct {
	BaseError
}

const ErrCodeJsonRpcException ErrorCode = "ErrJsonRpcException"

var NewErrJsonRpcException = func(code int, message string, data interface{}) error {
	details := map[string]interface{}{
		"code": code,
	}
	if data != nil {
		details["data"] = data
	}
	return &ErrJsonRpcException{
		BaseError{
			Code:    ErrCodeJsonRpcException,
			Message: message,
			Details: details,
		},
	}
}

func (e *ErrJsonRpcException) RpcCode() int {
	if c, ok := e.Details["code"].(int); ok {
		return c
	}
	return 0
}

type ErrEndpointTransportFailure struct{ BaseError }

const ErrCodeEndpointTransportFailure ErrorCode = "ErrEndpointTransportFailure"

var NewErrEndpointTransportFailure = func(url *url.URL, cause error) error {
	return &ErrEndpointTransportFailure{
		BaseError{
			Code:    ErrCodeEndpointTransportFailure,
			Message: "failure when sending request to node",
			Cause:   cause,
			Details: map[string]interface{}{
				"url": url.String(),
			},
		},
	}
}

type ErrEndpointServerSideException struct{ BaseError }

const ErrCodeEndpointServerSideException ErrorCode = "ErrEndpointServerSideException"

var NewErrEndpointServerSideException = func(statusCode int, body string) error {
	return &ErrEndpointServerSideException{
		BaseError{
			Code:    ErrCodeEndpointServerSideException,
			Message: "node responded with non-2xx status code",
			Details: map[string]interface{}{
				"statusCode": statusCode,
				"body":       body,
			},
		},
	}
}

type ErrEndpointMalformedResponse struct{ BaseError }

const ErrCodeEndpointMalformedResponse ErrorCode = "ErrEndpointMalformedResponse"

var NewErrEndpointMalformedResponse = func(cause error, body string) error {
	return &ErrEndpointMalformedResponse{
		BaseError{
			Code:    ErrCodeEndpointMalformedResponse,
			Message: "node response is not a valid json-rpc response",
			Cause:   cause,
			Details: map[string]interface{}{
				"body": body,
			},
		},
	}
}

//
// Failsafe Errors
//

type ErrFailsafeConfiguration struct{ BaseError }

var NewErrFailsafeConfiguration = func(cause error, details map[string]interface{}) error {
	return &ErrFailsafeConfiguration{
		BaseError{
			Code:    "ErrFailsafeConfiguration",
			Message: "failed to configure failsafe policy",
			Cause:   cause,
			Details: details,
		},
	}
}

type ErrFailsafeTimeoutExceeded struct{ BaseError }

const ErrCodeFailsafeTimeoutExceeded ErrorCode = "ErrFailsafeTimeoutExceeded"

var NewErrFailsafeTimeoutExceeded = func(cause error) error {
	return &ErrFailsafeTimeoutExceeded{
		BaseError{
			Code:    ErrCodeFailsafeTimeoutExceeded,
			Message: "failsafe timeout policy exceeded",
			Cause:   cause,
		},
	}
}

//
// Coverage Errors
//

type ErrArtifactLoad struct{ BaseError }

const ErrCodeArtifactLoad ErrorCode = "ErrArtifactLoad"

var NewErrArtifactLoad = func(path string, cause error) error {
	return &ErrArtifactLoad{
		BaseError{
			Code:    ErrCodeArtifactLoad,
			Message: "failed to load compiler artifact",
			Cause:   cause,
			Details: map[string]interface{}{
				"path": path,
			},
		},
	}
}

type ErrCoverageTrace struct{ BaseError }

const ErrCodeCoverageTrace ErrorCode = "ErrCoverageTrace"

var NewErrCoverageTrace = func(method string, cause error) error {
	return &ErrCoverageTrace{
		BaseError{
			Code:    ErrCodeCoverageTrace,
			Message: "failed to collect execution trace",
			Cause:   cause,
			Details: map[string]interface{}{
				"method": method,
			},
		},
	}
}

type ErrCoverageReport struct{ BaseError }

const ErrCodeCoverageReport ErrorCode = "ErrCoverageReport"

var NewErrCoverageReport = func(path string, cause error) error {
	return &ErrCoverageReport{
		BaseError{
			Code:    ErrCodeCoverageReport,
			Message: "failed to write coverage report",
			Cause:   cause,
			Details: map[string]interface{}{
				"path": path,
			},
		},
	}
}

//
// Configuration Errors
//

type ErrInvalidConfig struct{ BaseError }

var NewErrInvalidConfig = func(message string) error {
	return &ErrInvalidConfig{
		BaseError{
			Code:    "ErrInvalidConfig",
			Message: message,
		},
	}
}
