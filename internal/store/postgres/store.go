package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lesprima/attempt-service/internal/store"
)

// Store keeps attempt snapshots in PostgreSQL, one JSONB row per student
// slot. Chosen over Redis where snapshots must survive cache eviction
// policies; see migrations/ for the schema.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Save(ctx context.Context, studentID int, snap *store.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO attempt_snapshots (student_id, snapshot, saved_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id) DO UPDATE
		 SET snapshot = EXCLUDED.snapshot, saved_at = EXCLUDED.saved_at`,
		studentID, raw, snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, studentID int) (*store.Snapshot, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM attempt_snapshots WHERE student_id = $1`, studentID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Clear(ctx context.Context, studentID int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM attempt_snapshots WHERE student_id = $1`, studentID)
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM attempt_snapshots WHERE saved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
