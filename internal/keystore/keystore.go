// Package keystore persists the captured IR key and its transient backup.
//
// The store holds at most two opaque blobs: the current key, used for sending,
// and a backup, which only exists while a capture is overwriting the current
// key. Each blob is a file that is either absent or holds the whole key.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File names inside the store directory.
const (
	CurrentFile = "captured_key"
	BackupFile  = "captured_key.bak"
)

// RecoverAction describes what Recover did.
type RecoverAction string

const (
	RecoverNone           RecoverAction = "none"
	RecoverRestoredBackup RecoverAction = "restored_backup"
	RecoverDroppedBackup  RecoverAction = "dropped_backup"
)

// FileStore keeps the keys as files in a directory.
// Not safe for concurrent use; the controller is single threaded.
type FileStore struct {
	dir string
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Current returns the current key. ok is false when there is none.
func (s *FileStore) Current() (key []byte, ok bool, err error) {
	return s.read(CurrentFile)
}

// HasCurrent reports whether a current key exists.
func (s *FileStore) HasCurrent() bool {
	_, ok, err := s.read(CurrentFile)
	return ok && err == nil
}

// SetCurrent atomically replaces the current key.
func (s *FileStore) SetCurrent(key []byte) error {
	return s.write(CurrentFile, key)
}

// DeleteCurrent removes the current key. Removing a missing key is not an error.
func (s *FileStore) DeleteCurrent() error {
	return s.remove(CurrentFile)
}

// Backup returns the backup key. ok is false when there is none.
func (s *FileStore) Backup() (key []byte, ok bool, err error) {
	return s.read(BackupFile)
}

// SetBackup atomically replaces the backup key.
func (s *FileStore) SetBackup(key []byte) error {
	return s.write(BackupFile, key)
}

// DeleteBackup removes the backup key. Removing a missing key is not an error.
func (s *FileStore) DeleteBackup() error {
	return s.remove(BackupFile)
}

// Restore moves the backup back to current. ok is false when there was no backup,
// in which case the current key is left untouched.
func (s *FileStore) Restore() (ok bool, err error) {
	key, ok, err := s.Backup()
	if err != nil || !ok {
		return false, err
	}
	if err := s.SetCurrent(key); err != nil {
		return false, fmt.Errorf("restore backup: %w", err)
	}
	if err := s.DeleteBackup(); err != nil {
		return true, fmt.Errorf("delete restored backup: %w", err)
	}
	return true, nil
}

// Recover repairs the store after a crash during a capture.
// A lone backup is restored. A backup next to a current key is stale and dropped.
func (s *FileStore) Recover() (RecoverAction, error) {
	_, hasBackup, err := s.Backup()
	if err != nil {
		return RecoverNone, err
	}
	if !hasBackup {
		return RecoverNone, nil
	}
	_, hasCurrent, err := s.Current()
	if err != nil {
		return RecoverNone, err
	}
	if hasCurrent {
		if err := s.DeleteBackup(); err != nil {
			return RecoverNone, err
		}
		return RecoverDroppedBackup, nil
	}
	if _, err := s.Restore(); err != nil {
		return RecoverNone, err
	}
	return RecoverRestoredBackup, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) read(name string) ([]byte, bool, error) {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return b, true, nil
}

// write replaces name via a synced temp file and rename, so a crash leaves
// either the old or the new content, never a partial key.
func (s *FileStore) write(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return s.syncDir()
}

func (s *FileStore) remove(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return s.syncDir()
}

func (s *FileStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("open key dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync key dir: %w", err)
	}
	return nil
}
