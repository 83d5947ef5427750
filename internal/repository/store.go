package repository

import (
	"context"
	"fmt"

	"taskboard-server/internal/config"
)

// Store bundles the repositories of one backend.
type Store struct {
	Users UserRepository
	Tasks TaskRepository

	driver string
	ensure func(ctx context.Context) error
	close  func(ctx context.Context) error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case config.DriverCouchDB:
		return openCouch(ctx, cfg.CouchURL, cfg.Name)
	case config.DriverMongoDB:
		return openMongo(ctx, cfg.MongoURI, cfg.Name)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (s *Store) Driver() string {
	return s.driver
}

// EnsureSchema creates the database and the indexes the queries rely on.
// It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.ensure == nil {
		return nil
	}
	return s.ensure(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
