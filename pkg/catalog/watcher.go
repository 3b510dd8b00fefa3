package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay debounces editor write bursts into one reload.
const reloadDelay = 500 * time.Millisecond

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched so that atomic replaces are seen. A file
// that fails to parse leaves the previous entries in place.
func (c *Catalog) Watch(ctx context.Context, logger zerolog.Logger, onReload func(n int)) error {
	if c.path == "" {
		return fmt.Errorf("catalog was not loaded from a file")
	}
	logger = logger.With().Str("component", "catalog-watcher").Str("path", c.path).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(c.path), err)
	}

	target := filepath.Clean(c.path)

	go func() {
		defer watcher.Close()

		var reloadTimer *time.Timer
		defer func() {
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					if err := c.Reload(); err != nil {
						logger.Error().Err(err).Msg("Failed to reload catalog")
						return
					}
					n := c.Len()
					logger.Info().Int("entries", n).Msg("Catalog reloaded")
					if onReload != nil {
						onReload(n)
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("Watcher error")
			}
		}
	}()

	logger.Info().Msg("Started watching catalog")
	return nil
}
