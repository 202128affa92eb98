package chatclient

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultIdentityFile returns the file the user id is kept in when none is configured.
func DefaultIdentityFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sentichat", "user-id")
}

// LoadOrCreateUserID returns the id stored at path, generating and saving a new one the first
// time. The id stands in for a user account and is stable across runs.
func LoadOrCreateUserID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.WithMessagef(err, "could not read user id from %s", path)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", errors.WithMessage(err, "could not create identity directory")
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", errors.WithMessagef(err, "could not write user id to %s", path)
	}
	log.WithField("path", path).Info("created new chat user id")
	return id, nil
}
