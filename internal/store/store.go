package store

import "context"

// Store persists reattach records, keyed by instance name. The session layer
// saves after every state-changing event and treats failures as
// non-fatal-but-logged; a stale record at worst reattaches with slightly old
// port/reboot state.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, instance string) (Record, bool, error)
	Delete(ctx context.Context, instance string) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver string `mapstructure:"driver"` // "sqlite", "postgres", "memory"
	Path   string `mapstructure:"path"`   // sqlite file path; empty means in-memory
	DSN    string `mapstructure:"dsn"`    // postgres connection string
}
