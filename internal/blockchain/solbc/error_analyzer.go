// internal/blockchain/solbc/error_analyzer.go
package solbc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// AnchorError is an error reported by an Anchor program in transaction logs.
type AnchorError struct {
	Code int
	Name string
	Msg  string
}

// SimulationLogs returns the program logs attached to a failed preflight
// simulation, or nil when err carries none.
func SimulationLogs(err error) []string {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Data == nil {
		return nil
	}
	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]interface{})
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}

// FindAnchorError returns the first Anchor error found in logs.
func FindAnchorError(logs []string) (AnchorError, bool) {
	for _, line := range logs {
		if strings.Contains(line, "AnchorError occurred") || strings.Contains(line, "AnchorError thrown") {
			return ParseAnchorErrorLog(line), true
		}
	}
	return AnchorError{}, false
}

// ParseAnchorErrorLog parses a line such as
// "Program log: AnchorError occurred. Error Code: TooLittleSolReceived. Error Number: 6003. Error Message: Slippage: Too little SOL received."
func ParseAnchorErrorLog(line string) AnchorError {
	var out AnchorError
	if v, ok := field(line, "Error Number:"); ok {
		fmt.Sscanf(v, "%d", &out.Code)
	}
	if v, ok := field(line, "Error Code:"); ok {
		out.Name = v
	}
	if _, rest, ok := strings.Cut(line, "Error Message:"); ok {
		out.Msg = strings.TrimSuffix(strings.TrimSpace(rest), ".")
	}
	return out
}

func field(line, key string) (string, bool) {
	_, rest, ok := strings.Cut(line, key)
	if !ok {
		return "", false
	}
	v, _, _ := strings.Cut(rest, ".")
	return strings.TrimSpace(v), true
}
