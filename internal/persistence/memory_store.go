package persistence

import (
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a goroutine-safe ExecutionStore and CredentialStore
// backed by maps. It is the default for tests and single-process use
// without durability.
type InMemoryStore struct {
	mu          sync.RWMutex
	executions  map[string]ExecutionRecord
	credentials map[string]Credential
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		executions:  make(map[string]ExecutionRecord),
		credentials: make(map[string]Credential),
	}
}

var (
	_ ExecutionStore  = (*InMemoryStore)(nil)
	_ CredentialStore = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveExecution(rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	s.executions[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) GetExecution(id string) (ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[id]
	if !ok {
		return ExecutionRecord{}, ErrExecutionNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListExecutions(filter ExecutionFilter) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ExecutionRecord
	for _, rec := range s.executions {
		if filter.WorkflowName != "" && rec.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func credentialKey(userID, integrationID string) string {
	return userID + "\x00" + integrationID
}

func (s *InMemoryStore) Put(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	s.credentials[credentialKey(cred.UserID, cred.IntegrationID)] = cred
	return nil
}

func (s *InMemoryStore) Get(userID, integrationID string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[credentialKey(userID, integrationID)]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (s *InMemoryStore) Delete(userID, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(userID, integrationID)
	if _, ok := s.credentials[key]; !ok {
		return ErrCredentialNotFound
	}
	delete(s.credentials, key)
	return nil
}

func (s *InMemoryStore) ListConnected(userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, cred := range s.credentials {
		if cred.UserID == userID {
			out = append(out, cred.IntegrationID)
		}
	}
	sort.Strings(out)
	return out, nil
}
