package sealkv

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backupPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "backup"), filepath.Join(dir, "dek")
}

func TestBackup_WritesBothArtifacts(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	store := newTestStorage(t, "")
	require.NoError(t, store.Write("test1", []byte("test_value1")))
	require.NoError(t, store.Write("test2", []byte("test_value2")))

	require.NoError(t, store.Backup(backupPath, dekPath, "backup-pass"))
	assert.FileExists(t, backupPath)
	assert.FileExists(t, dekPath)
}

func TestBackup_WeakPassword(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	store, err := New(Config{Path: filepath.Join(t.TempDir(), "store")})
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Backup(backupPath, dekPath, "weak"), ErrWeakPassword)
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		sourcePassword string
		targetPassword string
	}{
		{"plain to plain", "", ""},
		{"encrypted to plain", "password", ""},
		{"plain to encrypted", "", "password"},
		{"encrypted to other password", "password", "other_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backupPath, dekPath := backupPaths(t)
			source := newTestStorage(t, tt.sourcePassword)
			require.NoError(t, source.Write("x", []byte("1")))
			require.NoError(t, source.Write("y", []byte("2")))
			require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

			target := newTestStorage(t, tt.targetPassword)
			require.NoError(t, target.Restore(backupPath, dekPath, "backup-pass"))

			keys, err := target.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"x", "y"}, keys)

			value, err := target.Read("x")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), value)
			value, err = target.Read("y")
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), value)
		})
	}
}

func TestBackup_ExcludesInternalRows(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "password")
	require.NoError(t, source.Write("user", []byte("v")))
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	target := newTestStorage(t, "")
	require.NoError(t, target.Restore(backupPath, dekPath, "backup-pass"))

	keys, err := target.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, keys)
}

func TestRestore_WrongPassword(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Write("x", []byte("1")))
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	target := newTestStorage(t, "")
	err := target.Restore(backupPath, dekPath, "not it")
	assert.ErrorIs(t, err, ErrWrongPassword)

	// Target untouched.
	empty, err := target.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestRestore_TruncatedPayload(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Write("x", []byte("1")))
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(backupPath, data[:len(data)-10], 0o600))

	target := newTestStorage(t, "")
	err = target.Restore(backupPath, dekPath, "backup-pass")
	assert.Error(t, err)

	empty, err := target.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestRestore_MissingDigestTrailer(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	// An empty store's backup is just the magic plus the digest
	// frame; dropping everything after the magic removes the trailer.
	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(backupPath, data[:len(backupMagic)], 0o600))

	target := newTestStorage(t, "")
	err = target.Restore(backupPath, dekPath, "backup-pass")
	assert.ErrorIs(t, err, ErrTruncatedBackup)
}

func TestRestore_ForeignFile(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))
	require.NoError(t, os.WriteFile(backupPath, []byte("definitely not a backup"), 0o600))

	target := newTestStorage(t, "")
	err := target.Restore(backupPath, dekPath, "backup-pass")
	assert.ErrorIs(t, err, ErrCorruptBackup)
}

func TestBackupRestore_ManyEntries(t *testing.T) {
	const quantity = 1500

	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	for i := 0; i < quantity; i++ {
		require.NoError(t, source.Write(fmt.Sprintf("test%04d", i), []byte(fmt.Sprintf("test_value%d", i))))
	}
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	target := newTestStorage(t, "")
	require.NoError(t, target.Restore(backupPath, dekPath, "backup-pass"))

	keys, err := target.Keys()
	require.NoError(t, err)
	require.Len(t, keys, quantity)
	for i := 0; i < quantity; i++ {
		value, err := target.Read(fmt.Sprintf("test%04d", i))
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("test_value%d", i)), value)
	}
}

func TestBackupRestore_LargeValues(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")

	// One value past the frame sanity cap and one spanning a few
	// chunks, with small neighbors so records straddle frame
	// boundaries on both sides.
	large := make([]byte, maxFrameSize+1024)
	for i := range large {
		large[i] = byte(i % 251)
	}
	medium := make([]byte, 3*frameChunkSize+17)
	for i := range medium {
		medium[i] = byte(i % 13)
	}

	require.NoError(t, source.Write("after", []byte("small")))
	require.NoError(t, source.Write("big", large))
	require.NoError(t, source.Write("medium", medium))

	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	target := newTestStorage(t, "")
	require.NoError(t, target.Restore(backupPath, dekPath, "backup-pass"))

	got, err := target.Read("big")
	require.NoError(t, err)
	require.Equal(t, large, got)
	got, err = target.Read("medium")
	require.NoError(t, err)
	require.Equal(t, medium, got)
	got, err = target.Read("after")
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), got)
}

func TestBackup_FailureLeavesNoArtifacts(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	store := newTestStorage(t, "password")

	// A raw row that was never encrypted makes the export fail after
	// the dek file has been sealed.
	require.NoError(t, store.eng.Put("bad", []byte("not a ciphertext")))

	require.Error(t, store.Backup(backupPath, dekPath, "backup-pass"))
	assert.NoFileExists(t, backupPath)
	assert.NoFileExists(t, dekPath)
}

func TestChangeBackupPassword(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Write("test1", []byte("test_value1")))
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	require.NoError(t, source.ChangeBackupPassword(dekPath, "backup-pass", "new-pass"))

	target := newTestStorage(t, "")
	assert.ErrorIs(t, target.Restore(backupPath, dekPath, "backup-pass"), ErrWrongPassword)
	require.NoError(t, target.Restore(backupPath, dekPath, "new-pass"))

	value, err := target.Read("test1")
	require.NoError(t, err)
	assert.Equal(t, []byte("test_value1"), value)
}

func TestChangeBackupPassword_WrongOld(t *testing.T) {
	backupPath, dekPath := backupPaths(t)
	source := newTestStorage(t, "")
	require.NoError(t, source.Backup(backupPath, dekPath, "backup-pass"))

	assert.ErrorIs(t, source.ChangeBackupPassword(dekPath, "not it", "new-pass"), ErrWrongPassword)
}
