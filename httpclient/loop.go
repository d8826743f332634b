package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/go-conduit/logger"
	"github.com/gaborage/go-conduit/response"
	"github.com/gaborage/go-conduit/retry"
)

// AttemptFunc performs one transport attempt under the given context.
type AttemptFunc func(ctx context.Context) (*response.Response, error)

// RunRetryLoop drives the shared retry state machine for a single logical
// send: it executes attempts strictly sequentially, classifies failures,
// consults the policy, waits out computed delays, and surfaces the LAST
// observed failure when retries are exhausted or ineligible. A 2xx
// response is always terminal success. Both transport bindings run their
// attempts through it.
func RunRetryLoop(ctx context.Context, policy *retry.Policy, log logger.Logger, sleep func(context.Context, time.Duration) error, attemptTimeout time.Duration, attempt AttemptFunc) (*response.Response, error) {
	var lastResp *response.Response
	var lastErr error

	for retries := 0; ; retries++ {
		resp, err := runAttempt(ctx, attemptTimeout, attempt)

		var outcome retry.Outcome
		switch {
		case err != nil:
			lastErr, lastResp = err, nil
			outcome = retry.Outcome{ErrorCode: ClassifyErrorCode(err)}
		case IsSuccessStatus(resp.StatusCode):
			return resp, nil
		default:
			lastResp, lastErr = resp, nil
			outcome = retry.Outcome{StatusCode: resp.StatusCode, RetryAfter: resp.Get("Retry-After")}
		}

		decision := policy.Decide(retries, outcome)
		if !decision.Retry {
			break
		}

		log.Warn().
			Int("attempt", retries+1).
			Int("max_retries", policy.MaxRetries()).
			Str("error_code", outcome.ErrorCode).
			Int("status", outcome.StatusCode).
			Dur("delay", decision.Delay).
			Msg("retrying request")

		if serr := sleep(ctx, decision.Delay); serr != nil {
			return nil, NewNetworkError("retry delay aborted", ClassifyErrorCode(serr), serr)
		}
	}

	if lastResp != nil {
		return nil, NewHTTPError(fmt.Sprintf("server responded with status %d", lastResp.StatusCode), lastResp)
	}
	// Already-classified failures (session errors, validation raised by an
	// interceptor) pass through untouched.
	var clientErr ClientError
	if errors.As(lastErr, &clientErr) {
		return nil, clientErr
	}
	code := ClassifyErrorCode(lastErr)
	if code == retry.CodeTimedOut {
		return nil, NewTimeoutError("transport attempt timed out", attemptTimeout, lastErr)
	}
	return nil, NewNetworkError("transport attempt failed", code, lastErr)
}

// runAttempt bounds one attempt with its own deadline. The timeout covers
// the attempt only, never the whole retried sequence.
func runAttempt(ctx context.Context, timeout time.Duration, attempt AttemptFunc) (*response.Response, error) {
	if timeout <= 0 {
		return attempt(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return attempt(attemptCtx)
}
