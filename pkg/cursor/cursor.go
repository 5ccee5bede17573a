package cursor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/storage"
)

// EndOfPages is stored as the token once the API reports no further pages
const EndOfPages = "<end>"

const stateVersion = 1

// Counters are the cumulative run counters. They never decrease.
type Counters struct {
	TotalLikedSeen    int64 `json:"total_liked_seen"`
	NonNativeURLCount int64 `json:"non_native_url_count"`
	ImagesDownloaded  int64 `json:"images_downloaded"`
	APIRequestsMade   int64 `json:"api_requests_made"`
}

// Add returns c + d field by field
func (c Counters) Add(d Counters) Counters {
	return Counters{
		TotalLikedSeen:    c.TotalLikedSeen + d.TotalLikedSeen,
		NonNativeURLCount: c.NonNativeURLCount + d.NonNativeURLCount,
		ImagesDownloaded:  c.ImagesDownloaded + d.ImagesDownloaded,
		APIRequestsMade:   c.APIRequestsMade + d.APIRequestsMade,
	}
}

// IsZero reports whether every counter is zero
func (c Counters) IsZero() bool {
	return c == Counters{}
}

func (c Counters) validate() error {
	if c.TotalLikedSeen < 0 || c.NonNativeURLCount < 0 || c.ImagesDownloaded < 0 || c.APIRequestsMade < 0 {
		return fmt.Errorf("counters cannot be negative: %+v", c)
	}
	return nil
}

// State is the persisted cursor record
type State struct {
	Version         int       `json:"version"`
	UserID          string    `json:"user_id"`
	PaginationToken *string   `json:"pagination_token"`
	Counters        Counters  `json:"counters"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Token returns the stored token and whether one is set
func (s State) Token() (string, bool) {
	if s.PaginationToken == nil {
		return "", false
	}
	return *s.PaginationToken, true
}

// IsComplete reports whether the last pass reached the end of the likes
func (s State) IsComplete() bool {
	token, ok := s.Token()
	return ok && token == EndOfPages
}

// Manager loads and advances the cursor of one user
type Manager struct {
	path   string
	logger logger.Logger
	state  *State
}

// NewManager creates a cursor manager persisting to path
func NewManager(path string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		path:   path,
		logger: log,
	}
}

// Load reads the persisted state, or starts a fresh one when none exists.
// A fresh state is not written until the first Advance.
func (m *Manager) Load(userID string) (State, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now().UTC()
			m.state = &State{
				Version:   stateVersion,
				UserID:    userID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			m.logger.DebugWithFields("No cursor found, starting fresh", map[string]interface{}{
				"user_id": userID,
				"path":    m.path,
			})
			return *m.state, nil
		}
		return State{}, fmt.Errorf("failed to open cursor file: %w", err)
	}
	defer file.Close()

	var state State
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode cursor %s: %w", m.path, err)
	}
	if state.Version != stateVersion {
		return State{}, fmt.Errorf("unsupported cursor version %d in %s", state.Version, m.path)
	}
	if state.UserID != "" && userID != "" && state.UserID != userID {
		return State{}, fmt.Errorf("cursor %s belongs to user %s, not %s", m.path, state.UserID, userID)
	}
	if err := state.Counters.validate(); err != nil {
		return State{}, fmt.Errorf("invalid cursor %s: %w", m.path, err)
	}

	m.state = &state
	token, _ := state.Token()
	m.logger.InfoWithFields("Cursor loaded", map[string]interface{}{
		"user_id":          state.UserID,
		"token":            token,
		"total_liked_seen": state.Counters.TotalLikedSeen,
		"updated_at":       state.UpdatedAt,
	})

	return state, nil
}

// State returns a copy of the in-memory state
func (m *Manager) State() State {
	if m.state == nil {
		return State{}
	}
	return *m.state
}

// IsComplete reports whether the stored token is EndOfPages
func (m *Manager) IsComplete() bool {
	return m.state != nil && m.state.IsComplete()
}

// Advance adds delta to the counters, replaces the token and persists the
// result. The in-memory state only changes once the write succeeded.
func (m *Manager) Advance(token string, delta Counters) error {
	if m.state == nil {
		return fmt.Errorf("cursor not loaded")
	}
	if token == "" {
		return fmt.Errorf("advance requires a token, use Restart to clear it")
	}
	if err := delta.validate(); err != nil {
		return err
	}

	next := *m.state
	next.PaginationToken = &token
	next.Counters = next.Counters.Add(delta)
	return m.persist(next)
}

// Restart clears the token so the next fetch begins at the newest like.
// Counters are kept.
func (m *Manager) Restart() error {
	if m.state == nil {
		return fmt.Errorf("cursor not loaded")
	}
	next := *m.state
	next.PaginationToken = nil
	return m.persist(next)
}

func (m *Manager) persist(next State) error {
	next.UpdatedAt = time.Now().UTC()

	err := storage.WriteAtomic(m.path, 0644, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(next)
	})
	if err != nil {
		return &likeerrors.PersistWriteError{Path: m.path, Op: "cursor", Err: err}
	}

	m.state = &next
	token, _ := next.Token()
	m.logger.DebugWithFields("Cursor saved", map[string]interface{}{
		"token":             token,
		"total_liked_seen":  next.Counters.TotalLikedSeen,
		"images_downloaded": next.Counters.ImagesDownloaded,
	})
	return nil
}
