package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDir  = ".todd"
	stateFile = "current_session"
)

// StateFilePath returns the full path to the current session state
// file, creating the state directory (~/.todd) if needed.
func StateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	stateDirPath := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(stateDirPath, 0o750); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	return filepath.Join(stateDirPath, stateFile), nil
}

// withStateLock runs fn while holding an advisory file lock, so two
// todd processes cannot interleave reads and writes of the state file.
func withStateLock(filePath string, fn func() error) error {
	lock := flock.New(filePath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// LoadCurrentSessionID loads the active session ID from the local
// state file. Returns (nil, nil) when no current session is recorded.
func LoadCurrentSessionID() (*uuid.UUID, error) {
	filePath, err := StateFilePath()
	if err != nil {
		return nil, err
	}

	var id *uuid.UUID
	err = withStateLock(filePath, func() error {
		data, err := os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading state file: %w", err)
		}

		raw := strings.TrimSpace(string(data))
		if raw == "" {
			return nil
		}

		parsed, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid session ID in state file: %w", err)
		}
		id = &parsed
		return nil
	})
	return id, err
}

// SaveCurrentSessionID records the given session as current.
func SaveCurrentSessionID(sessionID uuid.UUID) error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	return withStateLock(filePath, func() error {
		if err := os.WriteFile(filePath, []byte(sessionID.String()), 0o600); err != nil {
			return fmt.Errorf("writing state file: %w", err)
		}
		return nil
	})
}

// ClearCurrentSessionID removes the current session marker. Calling
// it when no current session exists is not an error.
func ClearCurrentSessionID() error {
	filePath, err := StateFilePath()
	if err != nil {
		return err
	}

	return withStateLock(filePath, func() error {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing state file: %w", err)
		}
		return nil
	})
}
