package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// stateFileName is the on-disk mirror of the OAuth state nonce.
//
// The nonce is persisted in two independent locations (this file and the
// oauth_states table) so the callback can validate it even when one store
// is unavailable after the browser redirect.
const stateFileName = "oauth_state"

func stateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".makosync", stateFileName), nil
}

// SaveStateFile writes the OAuth state nonce to the user's config directory.
func SaveStateFile(state string) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(state), 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// ReadStateFile returns the persisted OAuth state nonce, or an empty string if absent.
func ReadStateFile() (string, error) {
	path, err := stateFilePath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// FileStateStore adapts the state-file helpers to the nonce store interface.
//
// The file is per-machine rather than per-user; the CLI has a single local
// user, so the userID parameter is ignored.
type FileStateStore struct{}

func (FileStateStore) Save(userID, state string) error { return SaveStateFile(state) }

func (FileStateStore) Get(userID string) (string, error) { return ReadStateFile() }

func (FileStateStore) Clear(userID string) error { return ClearStateFile() }

// ClearStateFile removes the persisted OAuth state nonce.
func ClearStateFile() error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}

	return nil
}
