// Package watcher is the built-in file-change producer. It watches
// configured paths with fsnotify and publishes file_change events to the
// hub. Other producers (commit scanner, progress/risk recalculation, task
// updates) live in sibling services and publish over the HTTP boundary.
package watcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tracklight/tracklight/internal/server/events"
)

// Watcher publishes file_change events for filesystem activity under the
// watched paths.
type Watcher struct {
	bus    *events.Bus
	paths  []string
	logger *zerolog.Logger
}

// New creates a file watcher publishing to bus.
func New(bus *events.Bus, paths []string, logger *zerolog.Logger) *Watcher {
	return &Watcher{bus: bus, paths: paths, logger: logger}
}

// Run watches until ctx is cancelled. Watch errors on individual paths are
// logged and skipped; the watcher runs with whatever paths it could attach.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	attached := 0
	for _, p := range w.paths {
		if err := fw.Add(p); err != nil {
			w.logger.Warn().Err(err).Str("path", p).Msg("Failed to watch path")
			continue
		}
		attached++
	}
	if attached == 0 {
		w.logger.Warn().Msg("File watcher has no watchable paths")
		return nil
	}
	w.logger.Info().Int("paths", attached).Msg("File watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.publish(ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) publish(ev fsnotify.Event) {
	payload := map[string]any{
		"path":      filepath.ToSlash(ev.Name),
		"operation": strings.ToLower(ev.Op.String()),
	}
	if _, err := w.bus.Publish(events.FileChange, "", payload); err != nil {
		w.logger.Warn().Err(err).Str("path", ev.Name).Msg("Failed to publish file change")
	}
}
