package client

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// UserIDFile returns the default location of the persisted user identifier.
func UserIDFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve config dir")
	}
	return filepath.Join(dir, "chateval", "user_id"), nil
}

// LoadOrCreateUserID returns the opaque identifier that scopes session
// history to this machine: 8 hex characters generated once and kept forever.
// There is no authentication behind it.
func LoadOrCreateUserID(path string) (string, error) {
	if b, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(b))
		if id != "" {
			return id, nil
		}
	}

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate user id")
	}
	id := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create config dir")
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", errors.Wrap(err, "persist user id")
	}
	return id, nil
}
