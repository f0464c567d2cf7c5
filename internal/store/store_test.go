package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		Instance:    "alpha",
		AccessToken: "tok-abc",
		Port:        6001,
		Primary:     true,
		Security:    SecuritySafe,
		Visibility:  VisibilityPublic,
		PID:         12345,
		StartUnix:   1724630400,
		RebootMode:  RebootModeNormal,
		ArtifactID:  "build-7",
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

// roundTrip exercises the full Store contract against any implementation.
func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	_, found, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, found)

	rec := sampleRecord()
	require.NoError(t, s.Save(ctx, rec))

	got, found, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.AccessToken, got.AccessToken)
	assert.Equal(t, rec.Port, got.Port)
	assert.Equal(t, rec.Primary, got.Primary)
	assert.Equal(t, rec.Security, got.Security)
	assert.Equal(t, rec.Visibility, got.Visibility)
	assert.Equal(t, rec.PID, got.PID)
	assert.Equal(t, rec.StartUnix, got.StartUnix)
	assert.Equal(t, rec.RebootMode, got.RebootMode)
	assert.Equal(t, rec.ArtifactID, got.ArtifactID)

	// Save again with changed state: must upsert, not duplicate.
	rec.Port = 6002
	rec.RebootMode = RebootModeShutdown
	require.NoError(t, s.Save(ctx, rec))
	got, found, err = s.Load(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint16(6002), got.Port)
	assert.Equal(t, RebootModeShutdown, got.RebootMode)

	require.NoError(t, s.Delete(ctx, "alpha"))
	_, found, err = s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing record is not an error.
	require.NoError(t, s.Delete(ctx, "alpha"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	roundTrip(t, s)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore("") // in-memory
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	roundTrip(t, s)
}

func TestSQLiteStoreFileBacked(t *testing.T) {
	path := t.TempDir() + "/warden.db"
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.Save(ctx, sampleRecord()))
	require.NoError(t, s.Close())

	// Reopen: the record survives, which is the whole point of reattachment.
	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	got, found, err := s2.Load(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tok-abc", got.AccessToken)
}

func TestOpenFactory(t *testing.T) {
	s, err := Open(Config{Driver: "memory"})
	require.NoError(t, err)
	_ = s.Close()

	s, err = Open(Config{})
	require.NoError(t, err)
	_ = s.Close()

	s, err = Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	_ = s.Close()

	_, err = Open(Config{Driver: "etcd"})
	require.Error(t, err)
}
