package auth

import (
	"os"
	"time"
)

// Environment variables checked for a bearer token, in order
var TokenEnvVars = []string{"LIKESYNC_BEARER_TOKEN", "TWITTER_BEARER_TOKEN"}

// EnvironmentStore implements CredentialStore using environment variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the token from the environment under any profile name
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	token := lookupToken()
	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	if profile == "" {
		profile = DefaultProfile
	}

	return &Credential{
		Profile:      profile,
		BearerToken:  token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential if a token variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if a token variable is set
func (e *EnvironmentStore) Exists(profile string) bool {
	return lookupToken() != ""
}

func lookupToken() string {
	for _, name := range TokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
