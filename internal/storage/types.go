package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrLocked means another process holds the file ledger open.
	ErrLocked = errors.New("storage locked by another process")
)

// Config configures the ledger.
//
// Path is a file prefix for "file", a database file for "sqlite" and a
// directory for "pebble". DSN is used by "postgres".
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ProductCount is one row of the stock listing.
type ProductCount struct {
	Product string `json:"product"`
	Count   int    `json:"count"`
}

// Ledger is the persistence API used by the dedup store and the stock queue.
//
// Every call is all-or-nothing: a failed call leaves previously persisted
// state untouched.
type Ledger interface {
	// LoadKeys returns the persisted key set, or nil when none exists.
	LoadKeys(ctx context.Context, set string) ([]string, error)
	// ReplaceKeys overwrites the key set as a whole.
	ReplaceKeys(ctx context.Context, set string, keys []string) error

	AppendStock(ctx context.Context, product string, values []string, at time.Time) (int, error)
	// PopStock removes and returns the oldest row for product.
	PopStock(ctx context.Context, product string) (value string, ok bool, err error)
	CountStock(ctx context.Context, product string) (int, error)
	// ListStock groups remaining rows by product, ordered by product.
	ListStock(ctx context.Context) ([]ProductCount, error)
	DeleteStock(ctx context.Context, product string) (int, error)

	Close() error
}
