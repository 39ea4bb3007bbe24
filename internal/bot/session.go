package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionFreshness is the cutoff past which a saved session is discarded
// and password login is used instead.
const SessionFreshness = 180 * 24 * time.Hour

// sessionRecord is the on-disk shape at ${SESSION_PATH}/${username}.json.
type sessionRecord struct {
	RefreshToken string    `json:"refreshToken"`
	Timestamp    time.Time `json:"timestamp"`
	Username     string    `json:"username"`
	HasGuard     bool      `json:"hasGuard"`
}

// SessionStore reads and asynchronously persists refresh tokens.
type SessionStore struct {
	dir string
}

// NewSessionStore roots a session store at dir (the SESSION_PATH setting).
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

// Load returns a fresh (<180 day old) refresh token for username, or "" if
// none exists or the saved session has expired.
func (s *SessionStore) Load(username string) string {
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		return ""
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ""
	}
	if time.Since(rec.Timestamp) > SessionFreshness {
		return ""
	}
	return rec.RefreshToken
}

// SaveAsync persists a refresh token in the background. Best-effort:
// errors are logged, never returned to the caller, and a crashed write
// only costs one password login on the next boot.
func (s *SessionStore) SaveAsync(username, refreshToken string, hasGuard bool) {
	rec := sessionRecord{
		RefreshToken: refreshToken,
		Timestamp:    time.Now().UTC(),
		Username:     username,
		HasGuard:     hasGuard,
	}

	go func() {
		if err := s.save(rec); err != nil {
			log.Warn().Err(err).Str("username", username).Msg("failed to persist session")
		}
	}()
}

func (s *SessionStore) save(rec sessionRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	tmp := s.path(rec.Username) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return os.Rename(tmp, s.path(rec.Username))
}

func (s *SessionStore) path(username string) string {
	return filepath.Join(s.dir, username+".json")
}
