// internal/utils/retry/retry.go
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"regexp"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// Class is the retry class of an error.
type Class string

const (
	ClassRateLimit Class = "rate-limit"
	ClassNetwork   Class = "network"
	ClassOther     Class = "other"
)

// Policy configures Do.
type Policy struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`    // rate-limit exponential base
	NetworkDelay time.Duration `mapstructure:"network_delay"` // fixed delay for network errors
	MaxJitter    time.Duration `mapstructure:"max_jitter"`
}

// DefaultPolicy returns 5 retries, 1s base, 1s network delay, 500ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   5,
		BaseDelay:    time.Second,
		NetworkDelay: time.Second,
		MaxJitter:    500 * time.Millisecond,
	}
}

// StatusCoder is implemented by HTTP errors that carry a status code.
type StatusCoder interface {
	StatusCode() int
}

var (
	rateLimitText = regexp.MustCompile(`(?i)\b(?:status(?: code)?|code|http)[\s:=]*429\b|\btoo many requests\b|\brate[- ]limit(?:ed|s)?\b`)
	networkText   = regexp.MustCompile(`(?i)\b(?:i/o timeout|timed out|timeout|connection reset|connection refused|socket hang up|broken pipe|no such host|network is unreachable|unexpected eof)\b|: EOF$`)
)

// Solana JSON-RPC error codes with a retry meaning.
const (
	rpcCodeRateLimited   = 429
	rpcCodeNodeUnhealthy = -32005
)

// Classify maps an error to its retry class. Typed errors decide first;
// the message is only consulted for errors that carry no type information.
func Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassOther
	}
	if class, ok := classifyTyped(err); ok {
		return class
	}
	msg := err.Error()
	switch {
	case rateLimitText.MatchString(msg):
		return ClassRateLimit
	case networkText.MatchString(msg):
		return ClassNetwork
	}
	return ClassOther
}

func classifyTyped(err error) (Class, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.StatusCode()), true
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.Code), true
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.Code == rpcCodeRateLimited, rateLimitText.MatchString(rpcErr.Message):
			return ClassRateLimit, true
		case rpcErr.Code == rpcCodeNodeUnhealthy:
			return ClassNetwork, true
		}
		return ClassOther, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassNetwork, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassNetwork, true
	}
	return "", false
}

func classifyStatus(code int) Class {
	switch code {
	case 429:
		return ClassRateLimit
	case 408, 502, 503, 504:
		return ClassNetwork
	}
	return ClassOther
}

// classBackOff picks the next delay from the class of the last failure.
type classBackOff struct {
	policy  Policy
	class   Class
	retries int
}

func (b *classBackOff) NextBackOff() time.Duration {
	b.retries++
	switch b.class {
	case ClassRateLimit:
		delay := b.policy.BaseDelay << (b.retries - 1)
		if b.policy.MaxJitter > 0 {
			delay += rand.N(b.policy.MaxJitter)
		}
		return delay
	case ClassNetwork:
		return b.policy.NetworkDelay
	}
	return backoff.Stop
}

func (b *classBackOff) Reset() {
	b.retries = 0
}

// Do runs fn, retrying rate-limit and network failures per policy.
// When the retries run out the last error is returned as is; any other
// error is returned immediately.
func Do[T any](ctx context.Context, policy Policy, logger *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := &classBackOff{policy: policy}

	operation := func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		b.class = Classify(err)
		if b.class == ClassOther {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, d time.Duration) {
		if logger != nil {
			logger.Warn("Retrying after error",
				zap.String("operation", op),
				zap.String("class", string(b.class)),
				zap.Int("retry", b.retries),
				zap.Duration("delay", d),
				zap.Error(err))
		}
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}
	return v, err
}
