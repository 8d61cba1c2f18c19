package streams

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/process"
)

// watchPlaylist marks proc ready once its playlist appears in dir. The
// returned function releases the watch early; it also ends on its own when
// the process exits.
func watchPlaylist(dir, outputKey string, proc *process.Process, logger *slog.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	playlist := filepath.Join(dir, ffmpeg.PlaylistName(outputKey))
	quit := make(chan struct{})
	var once sync.Once

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// ffmpeg writes key.m3u8.tmp and renames it, which arrives as Create.
				if filepath.Clean(ev.Name) == playlist && (ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write)) {
					proc.MarkReady()
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Playlist watcher error", "playlist", playlist, "error", err)
			case <-proc.Done():
				return
			case <-quit:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(quit) }) }, nil
}
