package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msbolton/conduit/pkg/api"
)

// SQLiteStore is a Persister backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Persister.
var _ api.Persister = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sagas (
			saga_type TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			record BLOB NOT NULL,
			state TEXT NOT NULL,
			last_updated INTEGER NOT NULL,
			PRIMARY KEY (saga_type, correlation_id)
		);`,
	)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, sagaType string, entity api.Entity) error {
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}
	meta := entity.Meta()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sagas (saga_type, correlation_id, record, state, last_updated)
		VALUES (?, ?, ?, ?, ?)
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

func (s *SQLiteStore) Find(ctx context.Context, sagaType, correlationID string, newRecord api.EntityFactory) (api.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record FROM sagas WHERE saga_type = ? AND correlation_id = ?`,
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

func (s *SQLiteStore) Remove(ctx context.Context, sagaType, correlationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sagas WHERE saga_type = ? AND correlation_id = ?`,
		sagaType, correlationID,
	)
	if err != nil {
		return fmt.Errorf("remove saga %s/%s: %w", sagaType, correlationID, err)
	}
	return nil
}
