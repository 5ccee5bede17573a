package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// CredsFileName is the plain credentials file read from the working directory
const CredsFileName = "creds.json"

// FileStore reads a creds.json holding at least a "bearer_token" key. OAuth
// 1.0a keys (consumer_key, access_token...) may be present and are ignored.
// The file is never written.
type FileStore struct {
	path string
}

// NewFileStore creates a read-only store over path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type credsFile struct {
	BearerToken string `json:"bearer_token"`
}

func (f *FileStore) read() (*Credential, error) {
	content, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var file credsFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", ErrInvalidCredentials, f.path, err)
	}
	if file.BearerToken == "" {
		return nil, fmt.Errorf("%w: %s has no bearer_token", ErrInvalidCredentials, f.path)
	}

	cred := &Credential{Profile: DefaultProfile, BearerToken: file.BearerToken}
	if info, err := os.Stat(f.path); err == nil {
		cred.LastModified = info.ModTime()
	}
	return cred, nil
}

// Store is not supported; creds.json is managed by hand
func (f *FileStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the file's token for the default profile only
func (f *FileStore) Retrieve(profile string) (*Credential, error) {
	if profile != DefaultProfile {
		return nil, ErrCredentialsNotFound
	}
	return f.read()
}

// List returns the file's credential when it is usable
func (f *FileStore) List() ([]*Credential, error) {
	cred, err := f.read()
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported; creds.json is managed by hand
func (f *FileStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if the file holds a token for profile
func (f *FileStore) Exists(profile string) bool {
	_, err := f.Retrieve(profile)
	return err == nil
}
