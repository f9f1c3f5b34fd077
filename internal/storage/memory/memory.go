// internal/storage/memory/memory.go

// Package memory provides in-memory stores used when no database is configured and in tests.
package memory

import "github.com/rovshanmuradov/launch-sniper/internal/storage"

// New returns a full set of empty in-memory stores.
func New() storage.Stores {
	return storage.Stores{
		Targets:    NewTargetStore(),
		Executions: NewExecutionStore(),
		Watched:    NewWatchedAccountStore(),
		Alerts:     NewAlertStore(),
	}
}
