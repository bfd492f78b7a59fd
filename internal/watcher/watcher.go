// Package watcher observes the report drop directory. It runs an initial
// scan of existing files, then follows filesystem notifications; both paths
// funnel through the same fingerprint check so an unchanged file is never
// announced twice.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/metrics"
)

// acceptedExtensions lists the file types treated as radiology reports.
var acceptedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// DefaultQueueSize bounds the event channel when the configured size is zero.
const DefaultQueueSize = 256

// Event announces a new or changed report file.
type Event struct {
	Path        string
	Fingerprint string
	Size        int64
	ObservedAt  time.Time
}

// Watcher emits an Event per distinct file content observed under Dir.
type Watcher struct {
	dir    string
	events chan Event
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]string // path -> last announced fingerprint
}

// New creates a watcher for dir. queueSize bounds the event channel.
func New(dir string, queueSize int, logger *zap.Logger) *Watcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Watcher{
		dir:    dir,
		events: make(chan Event, queueSize),
		logger: logger,
		seen:   make(map[string]string),
	}
}

// Events returns the announcement channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run scans the directory, then follows Create/Write notifications until ctx
// is cancelled. The events channel is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	// Scan after Add so files landing during the scan are caught by
	// notifications; the fingerprint check deduplicates the overlap.
	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.consider(ctx, ev.Name, "fsnotify")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// scan announces every eligible file already present in the directory.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("Failed to scan watch directory", zap.String("dir", w.dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		w.consider(ctx, filepath.Join(w.dir, e.Name()), "initial_scan")
	}
}

// consider fingerprints the file and emits an event when the content is new
// for that path. Unreadable files are logged and skipped.
func (w *Watcher) consider(ctx context.Context, path, kind string) {
	if !Eligible(path) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("Failed to read report file", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		// Editors and copies often create the file before writing; the
		// Write notification will follow with content.
		return
	}

	sum := sha256.Sum256(data)
	fp := hex.EncodeToString(sum[:])

	w.mu.Lock()
	if w.seen[path] == fp {
		w.mu.Unlock()
		return
	}
	w.seen[path] = fp
	w.mu.Unlock()

	metrics.WatcherEventsTotal.WithLabelValues(kind).Inc()

	ev := Event{
		Path:        path,
		Fingerprint: fp,
		Size:        int64(len(data)),
		ObservedAt:  time.Now().UTC(),
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// Eligible reports whether the path has an accepted report extension.
func Eligible(path string) bool {
	return acceptedExtensions[strings.ToLower(filepath.Ext(path))]
}
