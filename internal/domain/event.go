// internal/domain/event.go
package domain

import "time"

// DetectionKind is what the classifier recognised in a transaction.
type DetectionKind string

const (
	DetectionMintCreated     DetectionKind = "mint-created"
	DetectionPoolInitialized DetectionKind = "pool-initialized"
	DetectionAssetAcquired   DetectionKind = "asset-acquired" // a watched wallet bought a token
)

// Detection is a launch or acquisition event extracted from a single chain transaction.
type Detection struct {
	Kind       DetectionKind `json:"kind"`
	Asset      string        `json:"asset"`
	Signature  string        `json:"signature"`
	Source     string        `json:"source"` // watched account or program that produced it
	Program    string        `json:"program,omitempty"`
	Slot       uint64        `json:"slot"`
	BlockTime  time.Time     `json:"block_time"`
	DetectedAt time.Time     `json:"detected_at"`
}

// Latency is the delay between block time and detection.
func (d Detection) Latency() time.Duration {
	if d.BlockTime.IsZero() {
		return 0
	}
	return d.DetectedAt.Sub(d.BlockTime)
}
