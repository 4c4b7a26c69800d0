// Package persistence provides storage for finished execution records
// and for per-user integration credentials, with in-memory and SQLite
// implementations of each.
package persistence

import (
	"errors"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

var (
	// ErrExecutionNotFound is returned when an execution record is absent.
	ErrExecutionNotFound = errors.New("execution record not found")

	// ErrCredentialNotFound is returned when no credential record exists
	// for a user/integration pair.
	ErrCredentialNotFound = errors.New("credential record not found")
)

// ExecutionRecord is the persisted form of a finished run.
type ExecutionRecord struct {
	ID           string
	WorkflowName string
	Status       string
	Snapshot     api.Snapshot
	FinishedAt   time.Time
}

// ExecutionFilter selects execution records. Empty fields mean "no
// filter".
type ExecutionFilter struct {
	WorkflowName string
	Status       string
	Limit        int
}

// ExecutionStore persists finished execution records.
type ExecutionStore interface {
	SaveExecution(rec ExecutionRecord) error
	GetExecution(id string) (ExecutionRecord, error)
	ListExecutions(filter ExecutionFilter) ([]ExecutionRecord, error)
}

// Credential is a stored integration credential record for one user.
type Credential struct {
	UserID        string
	IntegrationID string
	Data          map[string]string
	CreatedAt     time.Time
}

// CredentialStore persists integration credentials per user. How data
// is protected at rest is an implementation concern; the SQLite store
// seals it with AES-GCM.
type CredentialStore interface {
	Put(cred Credential) error
	Get(userID, integrationID string) (Credential, error)
	// Delete removes the record for the pair; ErrCredentialNotFound
	// if none exists.
	Delete(userID, integrationID string) error
	// ListConnected returns the integration ids the user has
	// credentials for.
	ListConnected(userID string) ([]string, error)
}
