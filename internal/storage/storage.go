package storage

import (
	"context"

	"txscope/internal/model"
)

// Store persists processed transaction results. UpsertResult must be
// idempotent: storing the same result twice yields one row per key.
type Store interface {
	UpsertResult(ctx context.Context, result *model.TransactionResult) error
}
