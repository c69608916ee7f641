package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/TFMV/stitchgraph/ingest"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const defaultDebounce = 200 * time.Millisecond

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [data file]",
		Short: "Serve a read-only view that reloads whenever the file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			session, loop, err := a.live(path, false)
			if err != nil {
				return err
			}

			reload := func(ctx context.Context) {
				g, err := ingest.LoadFile(path)
				if err != nil {
					a.logger.Warn("reload failed, keeping the current graph", "path", path, "error", err)
					return
				}
				err = loop.Do(ctx, func() { session.Viewer().Graph.Set(g) })
				if err != nil {
					return
				}
				a.logger.Info("graph reloaded", "path", path, "nodes", len(g.Nodes), "links", len(g.Links))
			}
			watcher := func(ctx context.Context) error {
				return watchFile(ctx, path, debounce, a.logger, func() { reload(ctx) })
			}
			return a.runLive(cmd.Context(), session, loop, watcher)
		},
	}
	cmd.Flags().IntVar(&a.port, "port", 8080, "Port for the HTTP server")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "Quiet period before a changed file is reloaded")
	return cmd
}

// watchFile calls reload once per burst of writes to path. The parent
// directory is watched so editors that replace the file are noticed too.
func watchFile(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("file changed", "path", path, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "path", path, "error", err)
		case <-timerC:
			timer, timerC = nil, nil
			reload()
		}
	}
}
