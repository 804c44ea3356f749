// Package storageutils picks a storage driver from configuration.
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/pkg/storage/inmemory"
	"github.com/papercomputeco/chatstream/pkg/storage/postgres"
	"github.com/papercomputeco/chatstream/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	PostgresDSN string
	SQLitePath  string
	Logger      *zap.Logger
}

// Backend names the driver NewDriver would pick for o.
func (o *NewDriverOpts) Backend() string {
	switch {
	case o.PostgresDSN != "":
		return "postgres"
	case o.SQLitePath != "":
		return "sqlite"
	default:
		return "in-memory"
	}
}

// NewDriver opens Postgres when a DSN is set, else SQLite when a path is
// set, else an in-memory driver.
func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	switch o.Backend() {
	case "postgres":
		driver, err := postgres.NewDriver(ctx, o.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres driver: %w", err)
		}
		log.Info("using Postgres storage")
		return driver, nil

	case "sqlite":
		driver, err := sqlite.NewSQLiteDriver(o.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", zap.String("path", o.SQLitePath))
		return driver, nil

	default:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}
