package matcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Candidate is one audio file considered as a possible recording of a call.
// Timestamps are epoch milliseconds; duration is milliseconds and may be
// zero when the source could not probe it.
type Candidate struct {
	Path           string
	DisplayName    string
	Size           int64
	DateAddedMs    int64
	DateModifiedMs int64
	DurationMs     int64
	Score          int
}

// CandidateSource enumerates audio files whose added time falls inside a
// window.
type CandidateSource interface {
	ListByTimeWindow(ctx context.Context, startMs, endMs int64) ([]Candidate, error)
}

// Recording directories used by the common OEM dialers, relative to the
// storage root. Covers Samsung, Xiaomi, OnePlus, Oppo, Vivo, Huawei, Pixel
// and generic recorder apps.
var recordingDirs = []string{
	"Call",
	"Recordings/Call",
	"Voice Recorder",
	"VoiceRecorder",
	"Recordings",
	"My Files/Call",
	"MIUI/sound_recorder/call_rec",
	"sound_recorder/call_rec",
	"Recordings/Call Recordings",
	"CallRecordings",
	"PhoneRecord",
	"Record",
	"Sounds/CallRecord",
	"CallRecord",
	"Recorder",
	"Call Recordings",
}

// RecordingDirs resolves the known recording directories under a storage
// root.
func RecordingDirs(root string) []string {
	dirs := make([]string, 0, len(recordingDirs))
	for _, dir := range recordingDirs {
		dirs = append(dirs, filepath.Join(root, dir))
	}
	return dirs
}

var audioExtensions = map[string]struct{}{
	".mp3": {},
	".wav": {},
	".m4a": {},
	".3gp": {},
	".amr": {},
	".ogg": {},
	".aac": {},
}

// DirScanner is the slow fallback candidate source: it walks the known
// recording directories and matches files on modified time and audio
// extension. Used when the media index has nothing for the window.
type DirScanner struct {
	root string
	log  *zap.SugaredLogger
}

var _ CandidateSource = (*DirScanner)(nil)

func NewDirScanner(root string) *DirScanner {
	return &DirScanner{root: root, log: zap.S().Named("dirscan")}
}

func (s *DirScanner) ListByTimeWindow(ctx context.Context, startMs, endMs int64) ([]Candidate, error) {
	var candidates []Candidate

	for _, dir := range recordingDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(filepath.Join(s.root, dir))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if !IsAudioFile(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			modified := info.ModTime().UnixMilli()
			if modified < startMs || modified > endMs {
				continue
			}
			candidates = append(candidates, Candidate{
				Path:           filepath.Join(s.root, dir, entry.Name()),
				DisplayName:    entry.Name(),
				Size:           info.Size(),
				DateAddedMs:    modified,
				DateModifiedMs: modified,
			})
		}
	}

	s.log.Debugf("fallback scan found %d candidates", len(candidates))
	return candidates, nil
}

func IsAudioFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := audioExtensions[ext]
	return ok
}
