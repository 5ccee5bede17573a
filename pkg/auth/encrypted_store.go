package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"likesync/pkg/storage"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "LIKESYNC_PASSPHRASE"
)

// EncryptedFileStore keeps credentials in an AES-GCM encrypted file whose
// key is derived from a passphrase with PBKDF2
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// encryptedFile is the on-disk envelope
type encryptedFile struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store at path. The passphrase comes from
// LIKESYNC_PASSPHRASE or from a .passphrase file next to path, generated
// on first use.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}

	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store saves the credential to the encrypted file
func (e *EncryptedFileStore) Store(cred *Credential) error {
	if cred == nil || cred.Profile == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	creds, err := e.load()
	if err != nil {
		return err
	}
	creds[cred.Profile] = *cred
	return e.save(creds)
}

// Retrieve gets the credential of a profile from the encrypted file
func (e *EncryptedFileStore) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	creds, err := e.load()
	if err != nil {
		return nil, err
	}
	cred, ok := creds[profile]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &cred, nil
}

// List returns all stored credentials sorted by profile
func (e *EncryptedFileStore) List() ([]*Credential, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	creds, err := e.load()
	if err != nil {
		return nil, err
	}

	result := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		cred := cred
		result = append(result, &cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Profile < result[j].Profile })
	return result, nil
}

// Delete removes a profile; the file goes away with the last one
func (e *EncryptedFileStore) Delete(profile string) error {
	if profile == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	creds, err := e.load()
	if err != nil {
		return err
	}
	if _, ok := creds[profile]; !ok {
		return ErrCredentialsNotFound
	}
	delete(creds, profile)

	if len(creds) == 0 {
		return os.Remove(e.path)
	}
	return e.save(creds)
}

// Exists checks if a credential exists for a profile
func (e *EncryptedFileStore) Exists(profile string) bool {
	cred, err := e.Retrieve(profile)
	return err == nil && cred != nil
}

// load decrypts the file. A missing file is an empty store.
func (e *EncryptedFileStore) load() (map[string]Credential, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Credential{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials (wrong passphrase?): %w", err)
	}

	creds := map[string]Credential{}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}

// save encrypts creds under a fresh salt and atomically replaces the file
func (e *EncryptedFileStore) save(creds map[string]Credential) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	file := encryptedFile{
		Version:   1,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Modified:  time.Now(),
	}

	return storage.WriteAtomic(e.path, 0600, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(file)
	})
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// loadPassphrase reads the passphrase from the environment or the given
// file, generating and saving a random one when neither exists
func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)

	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens data sealed by encrypt
func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
