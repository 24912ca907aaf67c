package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Entry describes one directory entry.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
	Mode  fs.FileMode
	CTime time.Time
	MTime time.Time
}

func resource(err error, format string, args ...any) error {
	return core.WithKind(errors.Wrapf(err, format, args...), core.KindResource)
}

func entryOf(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, resource(err, "stat %s", path)
	}
	ctime, mtime, err := statTimes(path)
	if err != nil {
		return Entry{}, resource(err, "stat %s", path)
	}
	return Entry{
		Name:  info.Name(),
		Path:  path,
		IsDir: info.IsDir(),
		Size:  info.Size(),
		Mode:  info.Mode(),
		CTime: ctime,
		MTime: mtime,
	}, nil
}

// List streams the immediate children of dir in name order. An entry that
// disappears between listing and stat is reported as an error and skipped.
func List(dir string) core.Stream[Entry] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[Entry] {
		out := make(chan core.Result[Entry])
		go func() {
			defer close(out)
			entries, err := os.ReadDir(dir)
			if err != nil {
				core.Send(ctx, out, core.Err[Entry](resource(err, "read dir %s", dir)))
				return
			}
			for _, e := range entries {
				entry, err := entryOf(filepath.Join(dir, e.Name()))
				res := core.Ok(entry)
				if err != nil {
					res = core.Err[Entry](err)
				}
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}

// Names streams the names of the children of dir in name order.
func Names(dir string) core.Stream[string] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[string] {
		out := make(chan core.Result[string])
		go func() {
			defer close(out)
			entries, err := os.ReadDir(dir)
			if err != nil {
				core.Send(ctx, out, core.Err[string](resource(err, "read dir %s", dir)))
				return
			}
			for _, e := range entries {
				if !core.Send(ctx, out, core.Ok(e.Name())) {
					return
				}
			}
		}()
		return out
	})
}

// Match streams the paths matching a glob pattern.
func Match(pattern string) core.Stream[string] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[string] {
		out := make(chan core.Result[string])
		go func() {
			defer close(out)
			matches, err := filepath.Glob(pattern)
			if err != nil {
				core.Send(ctx, out, core.Err[string](core.WithKind(errors.Wrapf(err, "pattern %q", pattern), core.KindInvalidInput)))
				return
			}
			for _, m := range matches {
				if !core.Send(ctx, out, core.Ok(m)) {
					return
				}
			}
		}()
		return out
	})
}

// WalkFiles streams every regular file path under root, depth first in
// lexical order.
func WalkFiles(root string) core.Stream[string] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[string] {
		out := make(chan core.Result[string])
		go func() {
			defer close(out)
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					if !core.Send(ctx, out, core.Err[string](resource(err, "walk %s", path))) {
						return ctx.Err()
					}
					return nil
				}
				if d.IsDir() {
					return nil
				}
				if !core.Send(ctx, out, core.Ok(path)) {
					return ctx.Err()
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				core.Send(ctx, out, core.Err[string](resource(err, "walk %s", root)))
			}
		}()
		return out
	})
}
