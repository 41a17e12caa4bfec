// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/monosync/internal/domain"
)

// MonobankAPI is the remote statement API. Implementations do not retry;
// rate limiting is the caller's concern.
type MonobankAPI interface {
	FetchClientInfo(ctx context.Context, token string) (*domain.ClientInfo, error)
	FetchStatement(ctx context.Context, token, accountID string, from, to int64) ([]domain.StatementItem, error)
}

// BlobStore is a key-value store of opaque JSON blobs.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// TokenStore keeps the bank token outside the local dataset.
type TokenStore interface {
	StoreToken(ctx context.Context, name, token string) error
	RetrieveToken(ctx context.Context, name string) (string, error)
	DeleteToken(ctx context.Context, name string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// StatusFunc receives leveled, user-facing status lines.
type StatusFunc func(domain.StatusUpdate)

// ProgressFunc receives a structured progress event after every batch.
type ProgressFunc func(domain.SyncProgress)
