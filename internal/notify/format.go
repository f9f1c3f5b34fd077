// internal/notify/format.go
package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/events"
)

const explorerTx = "https://solscan.io/tx/"

func label(t *domain.Target) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return short(t.AssetAddress)
}

func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

func sol(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-9).StringFixed(4)
}

func detectionMessage(d domain.Detection) string {
	var b strings.Builder
	if d.Kind == domain.DetectionAssetAcquired {
		b.WriteString("*Tracked wallet bought*\n\n")
		fmt.Fprintf(&b, "Asset: `%s`\n", d.Asset)
		fmt.Fprintf(&b, "Wallet: `%s`\n", short(d.Source))
		fmt.Fprintf(&b, "[View transaction](%s%s)", explorerTx, d.Signature)
		return b.String()
	}

	kind := "Token creation"
	if d.Kind == domain.DetectionPoolInitialized {
		kind = "Pool initialization"
	}
	b.WriteString("*New launch detected*\n\n")
	fmt.Fprintf(&b, "Asset: `%s`\n", d.Asset)
	fmt.Fprintf(&b, "Type: %s\n", kind)
	fmt.Fprintf(&b, "Source: `%s`\n", short(d.Source))
	if lat := d.Latency(); lat > 0 {
		fmt.Fprintf(&b, "Latency: %s\n", lat.Round(1e6))
	}
	fmt.Fprintf(&b, "[View transaction](%s%s)", explorerTx, d.Signature)
	return b.String()
}

func targetMessage(e events.TargetEvent) (string, bool) {
	t := e.Target
	var b strings.Builder
	switch e.Type() {
	case events.TargetExecuted:
		b.WriteString("*Snipe executed*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Spent: %s SOL\n", sol(t.AmountLamports))
		if f := t.Fill; f != nil {
			fmt.Fprintf(&b, "Received: %s\n", f.AmountUI().String())
			fmt.Fprintf(&b, "Price: %s SOL\n", f.Price.StringFixed(10))
			fmt.Fprintf(&b, "[View transaction](%s%s)", explorerTx, f.Signature)
		}
	case events.TargetFailed:
		b.WriteString("*Snipe failed*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Amount: %s SOL\n", sol(t.AmountLamports))
		fmt.Fprintf(&b, "Category: %s\n", e.Category)
		fmt.Fprintf(&b, "Attempts: %d/%d\n", t.Attempts, t.MaxAttempts)
		fmt.Fprintf(&b, "Error: %s", e.Reason)
	case events.TargetRetrying:
		b.WriteString("*Snipe attempt failed, retrying*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Attempts: %d/%d\n", t.Attempts, t.MaxAttempts)
		fmt.Fprintf(&b, "Category: %s\n", e.Category)
		fmt.Fprintf(&b, "Error: %s", e.Reason)
	case events.TargetRejected:
		b.WriteString("*Snipe rejected*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Reason: %s", e.Reason)
	case events.TargetCancelled:
		b.WriteString("*Snipe cancelled*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Reason: %s", e.Reason)
	default:
		return "", false
	}
	return b.String(), true
}

func positionMessage(e events.PositionEvent) (string, bool) {
	t := e.Target
	var b strings.Builder
	switch e.Type() {
	case events.PositionClosed:
		b.WriteString("*Auto-sell completed*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Trigger: %s\n", e.Reason)
		fmt.Fprintf(&b, "Change: %s%%\n", e.ChangePct.StringFixed(2))
		if r := e.Record; r != nil {
			fmt.Fprintf(&b, "Received: %s SOL\n", sol(r.AmountOut))
			fmt.Fprintf(&b, "[View transaction](%s%s)", explorerTx, r.Signature)
		}
	case events.PositionSellFailed:
		b.WriteString("*Auto-sell failed*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Change: %s%%\n", e.ChangePct.StringFixed(2))
		fmt.Fprintf(&b, "Category: %s\n", e.Category)
		fmt.Fprintf(&b, "Error: %s\n", e.Reason)
		b.WriteString("Retrying on the next check.")
	case events.PositionInconsistent:
		b.WriteString("*Position disabled*\n\n")
		fmt.Fprintf(&b, "Token: %s\n", label(t))
		fmt.Fprintf(&b, "Reason: %s", e.Reason)
	default:
		return "", false
	}
	return b.String(), true
}
