package mediaindex

import (
	"context"
	"fmt"
	"os"

	"github.com/hairocraft/callsync/internal/matcher"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AudioFile is one row of the audio_files table, the indexed media store
// queried by the recording matcher. Timestamps are epoch milliseconds.
type AudioFile struct {
	ID           int64  `gorm:"primaryKey"`
	Path         string `gorm:"uniqueIndex"`
	DisplayName  string
	Size         int64
	DurationMs   int64
	DateAdded    int64 `gorm:"index"`
	DateModified int64
	// IsMusic flags entries that are ordinary music, not recordings.
	IsMusic bool
}

func (AudioFile) TableName() string {
	return "audio_files"
}

// Index is the primary candidate source: fast time-window lookups against
// the audio_files table maintained by the Watcher.
type Index struct {
	db *gorm.DB
}

var _ matcher.CandidateSource = (*Index)(nil)

func NewIndex(db *gorm.DB) *Index {
	return &Index{db: db}
}

func (i *Index) InitialMigration() error {
	return i.db.AutoMigrate(&AudioFile{})
}

// Upsert inserts or refreshes the row for a path.
func (i *Index) Upsert(ctx context.Context, file *AudioFile) error {
	result := i.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "size", "duration_ms", "date_modified", "is_music"}),
	}).Create(file)
	if result.Error != nil {
		return fmt.Errorf("upserting audio file: %w", result.Error)
	}
	return nil
}

func (i *Index) Remove(ctx context.Context, path string) error {
	result := i.db.WithContext(ctx).Where("path = ?", path).Delete(&AudioFile{})
	if result.Error != nil {
		return fmt.Errorf("removing audio file: %w", result.Error)
	}
	return nil
}

// ListByTimeWindow returns candidates whose added time falls inside the
// window, excluding music entries, sub-1KB files and entries whose file no
// longer exists on disk.
func (i *Index) ListByTimeWindow(ctx context.Context, startMs, endMs int64) ([]matcher.Candidate, error) {
	var files []AudioFile
	result := i.db.WithContext(ctx).
		Where("date_added BETWEEN ? AND ? AND is_music = ?", startMs, endMs, false).
		Order("date_added DESC").
		Find(&files)
	if result.Error != nil {
		return nil, fmt.Errorf("querying audio files: %w", result.Error)
	}

	candidates := make([]matcher.Candidate, 0, len(files))
	for _, f := range files {
		if f.Size < 1024 {
			continue
		}
		if _, err := os.Stat(f.Path); err != nil {
			continue
		}
		candidates = append(candidates, matcher.Candidate{
			Path:           f.Path,
			DisplayName:    f.DisplayName,
			Size:           f.Size,
			DateAddedMs:    f.DateAdded,
			DateModifiedMs: f.DateModified,
			DurationMs:     f.DurationMs,
		})
	}
	return candidates, nil
}
