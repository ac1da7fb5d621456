package results

import (
	"context"
	"fmt"

	"github.com/miradorstack/ids-eval/internal/config"
)

// Store appends result rows. Stores are append-only; nothing is rewritten.
type Store interface {
	Append(ctx context.Context, rows []Row) error
	Location() string
	Close() error
}

// Open returns the store selected by cfg.Format.
func Open(cfg config.ResultsConfig) (Store, error) {
	switch cfg.Format {
	case config.FormatCSV, "":
		return NewCSVStore(cfg.Path), nil
	case config.FormatSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown results format %q", cfg.Format)
	}
}
