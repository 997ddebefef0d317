package postgres

import (
	"context"
	"fmt"

	dag "github.com/meikuraledutech/dagstore"
)

// CreateDag persists a new, empty dag.
func (s *PGStore) CreateDag(ctx context.Context, name string) (*dag.Dag, error) {
	if err := dag.ValidateName(name); err != nil {
		return nil, err
	}
	now := dag.Now()
	d := &dag.Dag{ID: dag.NewID(), Name: name, CreatedAt: now, UpdatedAt: now}

	_, err := s.db.Exec(ctx,
		`INSERT INTO dags (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Name, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("dag: insert dag: %w", err)
	}
	return d, nil
}

// GetDag fetches a single dag by its ID.
// Returns ErrDagNotFound if it doesn't exist.
func (s *PGStore) GetDag(ctx context.Context, dagID string) (*dag.Dag, error) {
	return getDag(ctx, s.db, dagID)
}

// ListDags returns every dag, most recently updated first.
func (s *PGStore) ListDags(ctx context.Context) ([]dag.Dag, error) {
	rows, err := s.db.Query(ctx, `SELECT `+dagColumns+` FROM dags ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("dag: list dags: %w", err)
	}
	defer rows.Close()

	dags := []dag.Dag{}
	for rows.Next() {
		d, err := scanDag(rows)
		if err != nil {
			return nil, fmt.Errorf("dag: scan dag: %w", err)
		}
		dags = append(dags, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dag: rows dags: %w", err)
	}
	return dags, nil
}

// UpdateDag renames a dag.
// Returns ErrDagNotFound if it doesn't exist.
func (s *PGStore) UpdateDag(ctx context.Context, dagID, name string) (*dag.Dag, error) {
	if err := dag.ValidateName(name); err != nil {
		return nil, err
	}
	d, err := scanDag(s.db.QueryRow(ctx,
		`UPDATE dags SET name = $1, updated_at = $2 WHERE id = $3 RETURNING `+dagColumns,
		name, dag.Now(), dagID,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", dag.ErrDagNotFound, dagID)
		}
		return nil, fmt.Errorf("dag: update dag: %w", err)
	}
	return d, nil
}

// DeleteDag deletes a dag. Its nodes, and every edge touching them, are
// cascade-deleted by the DB in the same statement.
// Returns ErrDagNotFound if it doesn't exist.
func (s *PGStore) DeleteDag(ctx context.Context, dagID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM dags WHERE id = $1`, dagID)
	if err != nil {
		return fmt.Errorf("dag: delete dag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", dag.ErrDagNotFound, dagID)
	}
	return nil
}
