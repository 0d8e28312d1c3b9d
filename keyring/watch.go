package keyring

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever PEM files in dir change. It blocks until
// ctx is cancelled and is intended to run in its own goroutine. Watching is
// best-effort: if the watcher cannot be established the store simply keeps
// its last loaded contents.
func (s *Store) Watch(ctx context.Context, dir string, defaultAlg string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("keyring.watch.unavailable", slog.String("err", err.Error()))
		return
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Add(dir); err != nil {
		log.Debug("keyring.watch.add.fail", slog.String("err", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".pem") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.ReloadDir(dir, defaultAlg); err != nil {
				// Keep serving the previous key set on a bad reload.
				log.Warn("keyring.reload.fail", slog.String("err", err.Error()))
				continue
			}
			log.Info("keyring.reload.ok", slog.Int("keys", s.Len()))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Debug("keyring.watch.err", slog.String("err", err.Error()))
		}
	}
}
