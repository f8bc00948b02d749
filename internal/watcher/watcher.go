// Package watcher regenerates the snapshot listing whenever account records
// change on disk. It watches the data directory with fsnotify and debounces
// bursts of writes so a storm of transfers produces one rewrite, not one
// per record.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fin-labs/ledgerd/pkg/ledger"
)

// Watcher runs the snapshot refresh loop.
type Watcher struct {
	mu sync.Mutex

	ledger       *ledger.Ledger
	dataDir      string
	snapshotPath string
	debounceWait time.Duration
	log          zerolog.Logger

	debounce *time.Timer
	wg       sync.WaitGroup
}

// New returns a Watcher that rewrites snapshotPath whenever a record under
// dataDir changes, waiting debounceWait after the last change.
func New(l *ledger.Ledger, dataDir, snapshotPath string, debounceWait time.Duration, logger zerolog.Logger) *Watcher {
	return &Watcher{
		ledger:       l,
		dataDir:      dataDir,
		snapshotPath: snapshotPath,
		debounceWait: debounceWait,
		log:          logger,
	}
}

// Run watches until ctx is cancelled. An initial snapshot is written before
// the first event.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dataDir); err != nil {
		return err
	}

	w.refresh()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.wg.Wait()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.isRecordEvent(event) {
				continue
			}
			w.scheduleRefresh()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// isRecordEvent filters out everything but account record replacements.
// Renames of .tmp files over .json records arrive as Create events; the
// snapshot and audit files themselves must not retrigger the loop.
func (w *Watcher) isRecordEvent(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func (w *Watcher) scheduleRefresh() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil && w.debounce.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.debounce = time.AfterFunc(w.debounceWait, func() {
		defer w.wg.Done()
		w.refresh()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil && w.debounce.Stop() {
		w.wg.Done()
	}
}

func (w *Watcher) refresh() {
	if err := w.ledger.WriteSnapshotFile(w.snapshotPath); err != nil {
		w.log.Warn().Err(err).Str("path", w.snapshotPath).Msg("snapshot refresh failed")
		return
	}
	w.log.Info().Str("path", w.snapshotPath).Msg("snapshot refreshed")
}
