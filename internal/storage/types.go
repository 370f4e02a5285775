package storage

import (
	"context"
	"time"

	"drumbot/internal/domain"
)

type Config struct {
	Driver      string
	Path        string // sqlite
	DSN         string // postgres
	BusyTimeout time.Duration
}

// Store is the subscription persistence API.
//
// Errors other than domain.ErrNotFound are wrapped with domain.ErrStorage.
// Upsert rejects subscriptions that fail Validate.
type Store interface {
	Upsert(ctx context.Context, sub domain.Subscription) error
	// Delete removes one row and reports whether it existed.
	Delete(ctx context.Context, ownerID, destID int64) (bool, error)
	// DeleteByDestination removes every owner's row for destID.
	DeleteByDestination(ctx context.Context, destID int64) (int, error)
	Get(ctx context.Context, ownerID, destID int64) (domain.Subscription, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error)
	ListAll(ctx context.Context) ([]domain.Subscription, error)
	ListByPolicy(ctx context.Context, p domain.Policy) ([]domain.Subscription, error)

	PutAnnounced(ctx context.Context, destID int64, filePath string) error
	LoadAnnounced(ctx context.Context) (map[int64]string, error)

	Close() error
}
