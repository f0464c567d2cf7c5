package store

import "fmt"

// Open creates a Store from config. An empty driver defaults to memory.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres", "postgresql":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q (supported: memory, sqlite, postgres)", cfg.Driver)
	}
}
