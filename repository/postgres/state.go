package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibeguard/sentinel/db"
)

const stateDocID = 1

// StateRepo keeps the document in a single JSONB row, the layout used by the
// original deployment.
type StateRepo struct {
	db *db.DB
}

func NewStateRepo(conn *db.DB) (*StateRepo, error) {
	r := &StateRepo{db: conn}
	_, err := conn.ExecContext(context.Background(),
		`CREATE TABLE IF NOT EXISTS sentinel_state (id INTEGER PRIMARY KEY, data JSONB NOT NULL)`)
	if err != nil {
		return nil, fmt.Errorf("can't ensure state table: %w", err)
	}
	return r, nil
}

func (r *StateRepo) Load(ctx context.Context) ([]byte, bool, error) {
	var blob []byte
	err := r.db.GetContext(ctx, &blob, `SELECT data FROM sentinel_state WHERE id = $1`, stateDocID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("can't load state document: %w", err)
	}
	return blob, true, nil
}

func (r *StateRepo) Save(ctx context.Context, blob []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sentinel_state (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		stateDocID, blob)
	if err != nil {
		return fmt.Errorf("can't save state document: %w", err)
	}
	return nil
}
