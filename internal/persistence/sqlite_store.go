package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

// SQLiteStore implements ExecutionStore and CredentialStore on top of a
// SQLite database.
//
// It expects an *sql.DB opened with a SQLite driver (for example
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver:
//
//	import _ "modernc.org/sqlite"
//
// Credential data is sealed with AES-GCM before it reaches the
// database; pass the process credential key to NewSQLiteStore.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
}

var (
	_ ExecutionStore  = (*SQLiteStore)(nil)
	_ CredentialStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the schema and returns a store. sealer may
// be nil, in which case credential data is stored unsealed (tests).
func NewSQLiteStore(db *sql.DB, sealer *Sealer) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, sealer: sealer}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot BLOB NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS credentials (
			user_id TEXT NOT NULL,
			integration_id TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, integration_id)
		);`,
	)
	return err
}

func (s *SQLiteStore) SaveExecution(rec ExecutionRecord) error {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return err
	}
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, workflow_name, status, snapshot, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			finished_at = excluded.finished_at`,
		rec.ID,
		rec.WorkflowName,
		rec.Status,
		snapshot,
		finishedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) GetExecution(id string) (ExecutionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_name, status, snapshot, finished_at
		FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

func (s *SQLiteStore) ListExecutions(filter ExecutionFilter) ([]ExecutionRecord, error) {
	query := `
		SELECT id, workflow_name, status, snapshot, finished_at
		FROM executions WHERE 1=1`
	var args []any
	if filter.WorkflowName != "" {
		query += " AND workflow_name = ?"
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY finished_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (ExecutionRecord, error) {
	var rec ExecutionRecord
	var snapshot []byte
	var finishedAt int64
	err := row.Scan(&rec.ID, &rec.WorkflowName, &rec.Status, &snapshot, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ExecutionRecord{}, ErrExecutionNotFound
	}
	if err != nil {
		return ExecutionRecord{}, err
	}
	rec.FinishedAt = time.UnixMilli(finishedAt)
	var snap api.Snapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return ExecutionRecord{}, err
	}
	rec.Snapshot = snap
	return rec, nil
}

func (s *SQLiteStore) Put(cred Credential) error {
	plaintext, err := json.Marshal(cred.Data)
	if err != nil {
		return err
	}
	data := plaintext
	if s.sealer != nil {
		data, err = s.sealer.Seal(plaintext)
		if err != nil {
			return err
		}
	}
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO credentials (user_id, integration_id, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, integration_id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at`,
		cred.UserID,
		cred.IntegrationID,
		data,
		createdAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Get(userID, integrationID string) (Credential, error) {
	row := s.db.QueryRow(`
		SELECT data, created_at FROM credentials
		WHERE user_id = ? AND integration_id = ?`, userID, integrationID)

	var data []byte
	var createdAt int64
	err := row.Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return Credential{}, err
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data)
		if err != nil {
			return Credential{}, err
		}
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return Credential{}, err
	}
	return Credential{
		UserID:        userID,
		IntegrationID: integrationID,
		Data:          fields,
		CreatedAt:     time.UnixMilli(createdAt),
	}, nil
}

func (s *SQLiteStore) Delete(userID, integrationID string) error {
	res, err := s.db.Exec(`
		DELETE FROM credentials WHERE user_id = ? AND integration_id = ?`,
		userID, integrationID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *SQLiteStore) ListConnected(userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT integration_id FROM credentials
		WHERE user_id = ? ORDER BY integration_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
