package indexer

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watchDebounce = 500 * time.Millisecond

// watcher turns filesystem events under the documents directory into scan hints.
type watcher struct {
	fs *fsnotify.Watcher
}

func newWatcher(dir string) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &watcher{fs: fw}, nil
}

// Start forwards debounced create, write and rename events until ctx ends.
// The returned channel holds at most one pending hint.
func (w *watcher) Start(ctx context.Context) <-chan struct{} {
	hints := make(chan struct{}, 1)
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if !relevant(ev) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("File watcher error")
			case <-fire:
				fire = nil
				select {
				case hints <- struct{}{}:
				default:
				}
			}
		}
	}()
	return hints
}

func (w *watcher) Close() error {
	return w.fs.Close()
}

func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}
