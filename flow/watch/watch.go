// Package watch streams file system state: classified change events for a
// directory (fsnotify), directory listings and glob matches.
package watch

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Watch streams classified events for the entries of dir until ctx is
// cancelled. The entries present when the stream starts are known, so only
// later changes produce events.
func Watch(dir string) core.Stream[Event] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[Event] {
		out := make(chan core.Result[Event])
		go func() {
			defer close(out)

			w, err := fsnotify.NewWatcher()
			if err != nil {
				core.Send(ctx, out, core.Err[Event](core.WithKind(errors.Wrap(err, "create watcher"), core.KindResource)))
				return
			}
			defer w.Close()

			c, err := Snapshot(dir)
			if err != nil {
				core.Send(ctx, out, core.Err[Event](err))
				return
			}
			if err := w.Add(dir); err != nil {
				core.Send(ctx, out, core.Err[Event](core.WithKind(errors.Wrapf(err, "watch %s", dir), core.KindResource)))
				return
			}
			forward(ctx, w, c, out)
		}()
		return out
	})
}

func forward(ctx context.Context, w *fsnotify.Watcher, c *Classifier, out chan<- core.Result[Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			e, err := c.Classify(filepath.Base(ev.Name))
			res := core.Ok(e)
			if err != nil {
				res = core.Err[Event](err)
			}
			if !core.Send(ctx, out, res) {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if !core.Send(ctx, out, core.Err[Event](core.WithKind(errors.Wrap(err, "watcher"), core.KindResource))) {
				return
			}
		}
	}
}
