package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msbolton/conduit/pkg/api"
)

// PostgresStore is a Persister backed by PostgreSQL through database/sql.
// The caller supplies a *sql.DB opened with the driver of their choice
// (lib/pq, pgx stdlib, ...).
type PostgresStore struct {
	db *sql.DB
}

var _ api.Persister = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema and returns a new store.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sagas (
			saga_type TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			record BYTEA NOT NULL,
			state TEXT NOT NULL,
			last_updated BIGINT NOT NULL,
			PRIMARY KEY (saga_type, correlation_id)
		);`,
	)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, sagaType string, entity api.Entity) error {
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}
	meta := entity.Meta()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sagas (saga_type, correlation_id, record, state, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (saga_type, correlation_id)
		DO UPDATE SET record = excluded.record, state = excluded.state, last_updated = excluded.last_updated`,
		sagaType,
		meta.CorrelationID,
		data,
		meta.State,
		meta.LastUpdated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save saga %s/%s: %w", sagaType, meta.CorrelationID, err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, sagaType, correlationID string, newRecord api.EntityFactory) (api.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record FROM sagas WHERE saga_type = $1 AND correlation_id = $2`,
		sagaType, correlationID,
	)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrSagaNotFound
		}
		return nil, fmt.Errorf("find saga %s/%s: %w", sagaType, correlationID, err)
	}

	return DecodeEntity(data, newRecord)
}

func (s *PostgresStore) Remove(ctx context.Context, sagaType, correlationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sagas WHERE saga_type = $1 AND correlation_id = $2`,
		sagaType, correlationID,
	)
	if err != nil {
		return fmt.Errorf("remove saga %s/%s: %w", sagaType, correlationID, err)
	}
	return nil
}
