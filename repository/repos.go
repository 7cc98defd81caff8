package repository

import (
	"context"
)

// StateRepo persists the single opaque state document. The document content
// is owned by the state package, repositories only move bytes.
type StateRepo interface {
	// Load returns the stored document, or found=false when none exists yet.
	Load(ctx context.Context) (blob []byte, found bool, err error)
	Save(ctx context.Context, blob []byte) error
}
