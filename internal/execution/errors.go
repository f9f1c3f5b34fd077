// internal/execution/errors.go
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/jupiter"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

var (
	// ErrInsufficientBalance is returned when the wallet cannot cover a swap.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBundleRejected is returned when the block engine definitively refused a bundle.
	ErrBundleRejected = errors.New("bundle rejected")
)

// Jupiter execute codes meaning the transaction expired before landing.
const (
	jupiterCodeExpired  = -1005
	jupiterCodeTimedOut = -1006
)

// Error is an execution failure with its category.
type Error struct {
	Category domain.ErrorCategory
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed [%s]: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap attaches a category to err. Errors already categorized keep theirs;
// otherwise the category is derived from err, falling back to fallback.
func wrap(op string, err error, fallback domain.ErrorCategory) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	cat := Categorize(err)
	if cat == domain.ErrUnknown {
		cat = fallback
	}
	return &Error{Category: cat, Op: op, Err: err}
}

// CategoryOf returns the category attached to err, or derives one.
func CategoryOf(err error) domain.ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return Categorize(err)
}

var (
	slippageMarkers = []string{"slippage", "0x1771", "6001", "toolittlesolreceived", "toomuchsolrequired", "exceedsdesiredslippagelimit"}
	balanceMarkers  = []string{"insufficient lamports", "insufficient funds", "insufficient balance"}
)

// Categorize maps an error to a failure category.
func Categorize(err error) domain.ErrorCategory {
	if err == nil {
		return domain.ErrUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}

	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return domain.ErrBalance
	case errors.Is(err, rpc.ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout
	case errors.Is(err, jupiter.ErrNoRoute):
		return domain.ErrQuoteService
	}

	text := strings.ToLower(err.Error())
	if logs := solbc.SimulationLogs(err); len(logs) > 0 {
		if ae, ok := solbc.FindAnchorError(logs); ok {
			text += " " + strings.ToLower(ae.Name) + " " + fmt.Sprint(ae.Code)
		}
		text += " " + strings.ToLower(strings.Join(logs, " "))
	}
	if containsAny(strings.ReplaceAll(text, " ", ""), slippageMarkers) || containsAny(text, slippageMarkers) {
		return domain.ErrSlippage
	}
	if containsAny(text, balanceMarkers) {
		return domain.ErrBalance
	}

	switch retry.Classify(err) {
	case retry.ClassRateLimit:
		return domain.ErrRateLimit
	case retry.ClassNetwork:
		return domain.ErrNetwork
	}
	return domain.ErrUnknown
}

// categorizeExecute maps a failed Jupiter execute result.
func categorizeExecute(res *jupiter.ExecuteResult, err error) domain.ErrorCategory {
	if res != nil {
		switch res.Code {
		case jupiterCodeExpired, jupiterCodeTimedOut:
			return domain.ErrTimeout
		}
	}
	return Categorize(err)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
