package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *FileStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "keys"))
	require.NoError(t, err)
	return s
}

func TestEmptyStore(t *testing.T) {
	s := openTemp(t)

	key, ok, err := s.Current()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, key)
	assert.False(t, s.HasCurrent())

	_, ok, err = s.Backup()
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting missing keys is fine.
	assert.NoError(t, s.DeleteCurrent())
	assert.NoError(t, s.DeleteBackup())
}

func TestSetAndReadCurrent(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetCurrent([]byte("pulse 9000\nspace 4500\n")))

	key, ok, err := s.Current()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pulse 9000\nspace 4500\n", string(key))
	assert.True(t, s.HasCurrent())

	require.NoError(t, s.SetCurrent([]byte("other")))
	key, _, _ = s.Current()
	assert.Equal(t, "other", string(key))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetCurrent([]byte("a")))
	require.NoError(t, s.SetBackup([]byte("b")))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{CurrentFile, BackupFile}, names)
}

func TestRestore(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetBackup([]byte("old")))

	ok, err := s.Restore()
	require.NoError(t, err)
	assert.True(t, ok)

	key, ok, _ := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "old", string(key))
	_, ok, _ = s.Backup()
	assert.False(t, ok, "backup must be gone after restore")
}

func TestRestoreWithoutBackupKeepsCurrent(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetCurrent([]byte("cur")))

	ok, err := s.Restore()
	require.NoError(t, err)
	assert.False(t, ok)

	key, _, _ := s.Current()
	assert.Equal(t, "cur", string(key))
}

func TestRecover(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		backup      string
		wantAction  RecoverAction
		wantCurrent string
	}{
		{"clean empty", "", "", RecoverNone, ""},
		{"clean with key", "k", "", RecoverNone, "k"},
		{"lone backup", "", "old", RecoverRestoredBackup, "old"},
		{"stale backup", "new", "old", RecoverDroppedBackup, "new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTemp(t)
			if tt.current != "" {
				require.NoError(t, s.SetCurrent([]byte(tt.current)))
			}
			if tt.backup != "" {
				require.NoError(t, s.SetBackup([]byte(tt.backup)))
			}

			action, err := s.Recover()
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, action)

			key, ok, _ := s.Current()
			assert.Equal(t, tt.wantCurrent != "", ok)
			assert.Equal(t, tt.wantCurrent, string(key))
			_, ok, _ = s.Backup()
			assert.False(t, ok, "no backup may survive recovery")
		})
	}
}
