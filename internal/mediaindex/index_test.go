package mediaindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "index.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	index := NewIndex(db)
	require.NoError(t, index.InitialMigration())
	return index
}

func writeAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0644))
	return path
}

func TestIndexListByTimeWindow(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	inside := writeAudioFile(t, "CallRecord_0123456789.m4a")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path:        inside,
		DisplayName: filepath.Base(inside),
		Size:        44100,
		DurationMs:  43_000,
		DateAdded:   10_000,
	}))

	outside := writeAudioFile(t, "old_recording.m4a")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path:        outside,
		DisplayName: filepath.Base(outside),
		Size:        44100,
		DateAdded:   500,
	}))

	candidates, err := index.ListByTimeWindow(ctx, 5_000, 20_000)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, inside, candidates[0].Path)
	assert.Equal(t, int64(43_000), candidates[0].DurationMs)
}

func TestIndexExcludesMusicAndTinyFiles(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	music := writeAudioFile(t, "track.mp3")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: music, DisplayName: "track.mp3", Size: 5_000_000, DateAdded: 10_000, IsMusic: true,
	}))

	tiny := writeAudioFile(t, "blip.m4a")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: tiny, DisplayName: "blip.m4a", Size: 100, DateAdded: 10_000,
	}))

	candidates, err := index.ListByTimeWindow(ctx, 5_000, 20_000)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestIndexExcludesVanishedFiles(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: "/no/such/file.m4a", DisplayName: "file.m4a", Size: 44100, DateAdded: 10_000,
	}))

	candidates, err := index.ListByTimeWindow(ctx, 5_000, 20_000)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestIndexUpsertRefreshesExistingRow(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	path := writeAudioFile(t, "rec.m4a")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: path, DisplayName: "rec.m4a", Size: 1024, DateAdded: 10_000,
	}))
	// the recorder finished writing and the file grew
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: path, DisplayName: "rec.m4a", Size: 44100, DurationMs: 43_000, DateAdded: 10_000,
	}))

	candidates, err := index.ListByTimeWindow(ctx, 5_000, 20_000)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(44100), candidates[0].Size)
	assert.Equal(t, int64(43_000), candidates[0].DurationMs)
}

func TestIndexRemove(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	path := writeAudioFile(t, "rec.m4a")
	require.NoError(t, index.Upsert(ctx, &AudioFile{
		Path: path, DisplayName: "rec.m4a", Size: 44100, DateAdded: 10_000,
	}))
	require.NoError(t, index.Remove(ctx, path))

	candidates, err := index.ListByTimeWindow(ctx, 5_000, 20_000)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
