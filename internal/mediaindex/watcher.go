package mediaindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hairocraft/callsync/internal/matcher"
	"go.uber.org/zap"
)

// OEM dialers create their recording directories lazily, often on the first
// recorded call. The watcher rescans on this interval to pick up directories
// that appeared after startup.
const defaultRescanInterval = time.Minute

// Watcher keeps the audio_files index current by watching the known
// recording directories for new or rewritten files. Recordings typically
// land on disk a few seconds after the call ends, so the watcher is what
// makes the first search attempt usually succeed.
type Watcher struct {
	index   *Index
	root    string
	dirs    []string
	watcher *fsnotify.Watcher
	log     *zap.SugaredLogger

	rescanEvery time.Duration
	// watched is only touched by Start and then the loop goroutine, never
	// concurrently.
	watched map[string]struct{}

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewWatcher(index *Index, storageRoot string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		index:       index,
		root:        storageRoot,
		dirs:        matcher.RecordingDirs(storageRoot),
		watcher:     fsWatcher,
		log:         zap.S().Named("mediaindex"),
		rescanEvery: defaultRescanInterval,
		watched:     make(map[string]struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Start watches every recording directory that exists and indexes what is
// already in them. Directories missing now are retried on each rescan.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	w.addWatches(ctx)
	w.log.Infof("watching %d recording directories", len(w.watched))

	w.running = true
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	_ = w.watcher.Close()
	w.wg.Wait()
	w.running = false
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	rescan := time.NewTicker(w.rescanEvery)
	defer rescan.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-rescan.C:
			w.addWatches(ctx)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("watch error: %v", err)
		}
	}
}

// addWatches puts a watch on every known directory that exists and is not
// watched yet. A directory watched for the first time may already hold
// recordings written before the watch existed, so its entries are indexed
// on the spot.
func (w *Watcher) addWatches(ctx context.Context) {
	for _, dir := range w.dirs {
		if _, ok := w.watched[dir]; ok {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.log.Warnf("cannot watch %s: %v", dir, err)
			continue
		}
		w.watched[dir] = struct{}{}
		w.log.Infof("watching recording directory %s", dir)
		w.indexExisting(ctx, dir)
	}
}

func (w *Watcher) indexExisting(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !matcher.IsAudioFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		w.upsertFile(ctx, filepath.Join(dir, entry.Name()), info)
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !matcher.IsAudioFile(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		if err := w.index.Remove(ctx, event.Name); err != nil {
			w.log.Warnf("failed to drop %s from index: %v", event.Name, err)
		}
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.upsertFile(ctx, event.Name, info)
	}
}

func (w *Watcher) upsertFile(ctx context.Context, path string, info os.FileInfo) {
	modified := info.ModTime().UnixMilli()
	file := &AudioFile{
		Path:         path,
		DisplayName:  filepath.Base(path),
		Size:         info.Size(),
		DurationMs:   ProbeDurationMs(ctx, path),
		DateAdded:    modified,
		DateModified: modified,
	}
	if err := w.index.Upsert(ctx, file); err != nil {
		w.log.Warnf("failed to index %s: %v", path, err)
	}
}
