package store

import (
	"context"
	"fmt"

	mydb "github.com/TimurManjosov/cclengine/internal/db"
)

// Options carries the settings a store type may need.
type Options struct {
	Path string
	DSN  string
}

// NewStore creates a store for storeType: "bundled", "file" or "postgres".
func NewStore(ctx context.Context, storeType string, opts Options) (Store, error) {
	switch storeType {
	case "bundled":
		return NewBundledStore()
	case "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewFileStore(opts.Path), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := mydb.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
