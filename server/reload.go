package server

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/dermesser/brokerpc/internal/rpclog"
)

// watchForReload watches paths for any filesystem event and calls
// triggerShutdown on each one, so the caller's main loop
// can perform a graceful shutdown for the supervisor to respawn (spec
// §4.6, auto-reload).
func watchForReload(ctx context.Context, logger *rpclog.Logger, paths []string, triggerShutdown func()) (stop func(), err error) {
	if len(paths) == 0 {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if logger != nil {
					logger.Infof(ctx, "auto-reload: change detected", "path", ev.Name, "op", ev.Op.String())
				}
				triggerShutdown()
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Warnf(ctx, "auto-reload: watcher error", "error", werr)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
