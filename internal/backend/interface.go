package backend

import (
	"context"

	"poupa/internal/ports"
	"poupa/internal/storage"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult carries the selected store. SQLite is non-nil only for the
// sqlite backend, which also owns export bookkeeping.
type BackendResult struct {
	Store   ports.TransactionStore
	Users   ports.UserDirectory
	SQLite  *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend seed directory
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
