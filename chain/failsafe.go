package chain

import (
	"errors"

	"github.com/erpc/solbridge/common"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// CreateFailSafePolicies builds the policies wrapped around every node call.
// A nil config yields no policies, i.e. a single attempt with no deadline.
func CreateFailSafePolicies(component string, fsCfg *common.FailsafeConfig) ([]failsafe.Policy[*JsonRpcResponse], error) {
	var policies = []failsafe.Policy[*JsonRpcResponse]{}

	if fsCfg == nil {
		return policies, nil
	}

	if fsCfg.Retry != nil {
		p, err := createRetryPolicy(component, fsCfg.Retry)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	if fsCfg.Timeout != nil {
		p, err := createTimeoutPolicy(component, fsCfg.Timeout)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, nil
}

func createRetryPolicy(component string, cfg *common.RetryPolicyConfig) (failsafe.Policy[*JsonRpcResponse], error) {
	if cfg.MaxAttempts < 0 {
		return nil, common.NewErrFailsafeConfiguration(errors.New("retry.maxAttempts must not be negative"), map[string]interface{}{
			"component": component,
			"policy":    cfg,
		})
	}

	builder := retrypolicy.Builder[*JsonRpcResponse]().
		// Only transport failures are retried, never json-rpc errors.
		HandleIf(func(_ *JsonRpcResponse, err error) bool {
			return common.HasErrorCode(err, common.ErrCodeEndpointTransportFailure)
		}).
		ReturnLastFailure()

	if cfg.MaxAttempts > 0 {
		builder = builder.WithMaxAttempts(cfg.MaxAttempts)
	}

	if delay := cfg.Delay.Duration(); delay > 0 {
		if maxDelay := cfg.BackoffMaxDelay.Duration(); maxDelay > 0 {
			if maxDelay < delay {
				return nil, common.NewErrFailsafeConfiguration(errors.New("retry.backoffMaxDelay must be greater than retry.delay"), map[string]interface{}{
					"component": component,
					"policy":    cfg,
				})
			}
			if cfg.BackoffFactor > 0 {
				builder = builder.WithBackoffFactor(delay, maxDelay, cfg.BackoffFactor)
			} else {
				builder = builder.WithBackoff(delay, maxDelay)
			}
		} else {
			builder = builder.WithDelay(delay)
		}
	}

	if jitter := cfg.Jitter.Duration(); jitter > 0 {
		builder = builder.WithJitter(jitter)
	}

	return builder.Build(), nil
}

func createTimeoutPolicy(component string, cfg *common.TimeoutPolicyConfig) (failsafe.Policy[*JsonRpcResponse], error) {
	if cfg.Duration.Duration() <= 0 {
		return nil, common.NewErrFailsafeConfiguration(errors.New("missing timeout duration"), map[string]interface{}{
			"component": component,
			"policy":    cfg,
		})
	}
	return timeout.Builder[*JsonRpcResponse](cfg.Duration.Duration()).Build(), nil
}

func TranslateFailsafeError(execErr error) error {
	if execErr == nil {
		return nil
	}
	if errors.Is(execErr, timeout.ErrExceeded) {
		return common.NewErrFailsafeTimeoutExceeded(execErr)
	}
	return execErr
}
