package auth

import (
	"sort"
	"sync"
)

// MockStore is an in-memory CredentialStore with error injection, used in
// tests of code that needs a credential manager
type MockStore struct {
	creds map[string]Credential
	mu    sync.RWMutex

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{creds: make(map[string]Credential)}
}

// NewMockManager creates a Manager over a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}

func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if cred == nil || cred.Profile == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Profile] = *cred
	return nil
}

func (m *MockStore) Retrieve(profile string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[profile]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &cred, nil
}

func (m *MockStore) List() ([]*Credential, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		cred := cred
		result = append(result, &cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Profile < result[j].Profile })
	return result, nil
}

func (m *MockStore) Delete(profile string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[profile]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, profile)
	return nil
}

func (m *MockStore) Exists(profile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.creds[profile]
	return ok
}

// Count returns the number of stored credentials
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}
