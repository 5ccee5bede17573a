package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// DefaultProfile names the credential used when no profile is given
const DefaultProfile = "default"

// Credential is an app-only bearer token for the v2 API
type Credential struct {
	Profile      string    `json:"profile"`
	BearerToken  string    `json:"bearer_token"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential under its profile
	Store(cred *Credential) error

	// Retrieve gets the credential of a profile
	Retrieve(profile string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential of a profile
	Delete(profile string) error

	// Exists checks if a credential exists for a profile
	Exists(profile string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager over the keyring, the encrypted
// file store, a creds.json in the working directory and the environment,
// in that order.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewFileStore(CredsFileName))
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the credential in the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil {
		return ErrInvalidCredentials
	}
	cred.BearerToken = strings.TrimSpace(cred.BearerToken)
	if cred.BearerToken == "" {
		return errors.New("bearer token is required")
	}
	if cred.Profile == "" {
		cred.Profile = DefaultProfile
	}
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// RetrieveDefault resolves the token to use when no profile is named: the
// environment wins, then the default profile, then any stored credential.
func (m *Manager) RetrieveDefault() (*Credential, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if cred, err := envStore.Retrieve(""); err == nil {
				return cred, nil
			}
		}
	}

	if cred, err := m.Retrieve(DefaultProfile); err == nil {
		return cred, nil
	}

	creds, err := m.List()
	if err == nil && len(creds) > 0 {
		return creds[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns the newest credential per profile across all stores,
// sorted by profile
func (m *Manager) List() ([]*Credential, error) {
	byProfile := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byProfile[cred.Profile]; !ok || cred.LastModified.After(existing.LastModified) {
				byProfile[cred.Profile] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byProfile))
	for _, cred := range byProfile {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Profile < result[j].Profile })

	return result, nil
}

// Delete removes the credential from all stores
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "likesync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "likesync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "likesync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "likesync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential returns a copy with the token masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}

	return &Credential{
		Profile:      cred.Profile,
		BearerToken:  MaskToken(cred.BearerToken),
		LastModified: cred.LastModified,
	}
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
