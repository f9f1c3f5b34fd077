// internal/classifier/classifier.go
package classifier

import (
	"strings"
	"time"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// TokenBalance is one token balance snapshot entry.
type TokenBalance struct {
	AccountIndex uint16
	Mint         string
	Owner        string
	Amount       uint64
	Decimals     uint8
}

// TxRecord is the parsed form of a confirmed transaction.
type TxRecord struct {
	Signature         string
	Slot              uint64
	BlockTime         time.Time
	Failed            bool
	Logs              []string
	AccountKeys       []string
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Classifier recognises launch transactions from their logs and token balances.
type Classifier struct {
	markers  map[string][]Marker
	excluded map[string]struct{}
}

// New creates a classifier with the given markers and excluded mints.
func New(markers []Marker, excluded []string) *Classifier {
	c := &Classifier{
		markers:  make(map[string][]Marker),
		excluded: make(map[string]struct{}, len(excluded)),
	}
	for _, m := range markers {
		c.markers[m.Program] = append(c.markers[m.Program], m)
	}
	for _, mint := range excluded {
		c.excluded[mint] = struct{}{}
	}
	return c
}

// Default returns a classifier with the built-in markers.
func Default() *Classifier {
	return New(DefaultMarkers, DefaultExcludedMints)
}

// Classify returns the detection a transaction represents. Transactions
// without a marker or without a candidate asset are not matches.
func (c *Classifier) Classify(rec TxRecord) (domain.Detection, bool) {
	if rec.Failed {
		return domain.Detection{}, false
	}

	kind, program, ok := c.scanLogs(rec.Logs)
	if !ok {
		return domain.Detection{}, false
	}

	asset, ok := c.extractAsset(rec.PreTokenBalances, rec.PostTokenBalances)
	if !ok {
		return domain.Detection{}, false
	}

	return domain.Detection{
		Kind:      kind,
		Asset:     asset,
		Signature: rec.Signature,
		Program:   program,
		Slot:      rec.Slot,
		BlockTime: rec.BlockTime,
	}, true
}

// scanLogs tracks the invoked program stack so a marker only counts when its
// own program printed it. Pool markers win over mint markers.
func (c *Classifier) scanLogs(logs []string) (domain.DetectionKind, string, bool) {
	var (
		stack       []string
		mintProgram string
		poolProgram string
	)

	for _, line := range logs {
		if program, ok := invokedProgram(line); ok {
			stack = append(stack, program)
			continue
		}
		if program, ok := finishedProgram(line); ok {
			if n := len(stack); n > 0 && stack[n-1] == program {
				stack = stack[:n-1]
			}
			continue
		}
		if len(stack) == 0 {
			continue
		}

		current := stack[len(stack)-1]
		for _, m := range c.markers[current] {
			if !m.matches(line) {
				continue
			}
			switch m.Kind {
			case domain.DetectionPoolInitialized:
				if poolProgram == "" {
					poolProgram = current
				}
			case domain.DetectionMintCreated:
				if mintProgram == "" {
					mintProgram = current
				}
			}
		}
	}

	switch {
	case poolProgram != "":
		return domain.DetectionPoolInitialized, poolProgram, true
	case mintProgram != "":
		return domain.DetectionMintCreated, mintProgram, true
	}
	return "", "", false
}

// extractAsset prefers a mint that appears only after the transaction, then
// falls back to the first non-excluded mint in the post balances.
func (c *Classifier) extractAsset(pre, post []TokenBalance) (string, bool) {
	seen := make(map[string]struct{}, len(pre))
	for _, b := range pre {
		seen[b.Mint] = struct{}{}
	}

	for _, b := range post {
		if _, old := seen[b.Mint]; old || c.isExcluded(b.Mint) {
			continue
		}
		return b.Mint, true
	}
	for _, b := range post {
		if !c.isExcluded(b.Mint) {
			return b.Mint, true
		}
	}
	return "", false
}

func (c *Classifier) isExcluded(mint string) bool {
	if mint == "" {
		return true
	}
	_, ok := c.excluded[mint]
	return ok
}

func (m Marker) matches(line string) bool {
	switch m.Mode {
	case MatchExact:
		return line == m.Text
	case MatchPrefix:
		return strings.HasPrefix(line, m.Text)
	default:
		return strings.Contains(line, m.Text)
	}
}

// invokedProgram parses "Program <id> invoke [n]".
func invokedProgram(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "Program ")
	if !ok {
		return "", false
	}
	id, tail, ok := strings.Cut(rest, " ")
	if !ok || !strings.HasPrefix(tail, "invoke [") {
		return "", false
	}
	return id, true
}

// finishedProgram parses "Program <id> success" and "Program <id> failed: ...".
func finishedProgram(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "Program ")
	if !ok {
		return "", false
	}
	id, tail, ok := strings.Cut(rest, " ")
	if !ok || (tail != "success" && !strings.HasPrefix(tail, "failed")) {
		return "", false
	}
	return id, true
}
