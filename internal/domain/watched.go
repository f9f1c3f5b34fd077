// internal/domain/watched.go
package domain

import "time"

// AccountRole describes why an account is watched.
type AccountRole string

const (
	RoleAssetSource  AccountRole = "asset-source"
	RoleLaunchSource AccountRole = "launch-source"
)

// WatchedAccount is a wallet or program monitored for activity.
type WatchedAccount struct {
	Address   string      `json:"address"`
	Role      AccountRole `json:"role"`
	Label     string      `json:"label,omitempty"`
	AddedBy   string      `json:"added_by"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
