package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// watchArtifacts reports changes to the named artifact files through
// notify until ctx is done. Parent directories are watched so atomic
// replacement by rename is seen; missing directories are skipped.
func watchArtifacts(ctx context.Context, artifacts map[string]string, notify func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	byPath := make(map[string]string, len(artifacts))
	dirs := make(map[string]bool)
	for name, path := range artifacts {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		byPath[clean] = name
		dirs[filepath.Dir(clean)] = true
	}

	watched := 0
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			log.Warn().Str("dir", dir).Msg("Artifact directory missing, not watching")
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	log.Info().Int("dirs", watched).Int("artifacts", len(byPath)).Msg("Watching artifacts")

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, known := byPath[filepath.Clean(event.Name)]
				if !known || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				notify(Event{
					Artifact: name,
					Path:     event.Name,
					Op:       opName(event.Op),
					At:       time.Now().UTC(),
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Artifact watcher error")

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	}
	return op.String()
}
