package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Kind is what happened to a directory entry.
type Kind int

const (
	Created Kind = iota
	ContentUpdated
	StatusUpdated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case ContentUpdated:
		return "content-updated"
	case StatusUpdated:
		return "status-updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one classified change of a directory entry.
type Event struct {
	Name string
	Kind Kind
}

func (e Event) String() string { return e.Kind.String() + " " + e.Name }

// StatFunc returns the change and modification times of path.
type StatFunc func(path string) (ctime, mtime time.Time, err error)

// Classifier turns raw change notifications into Events by remembering which
// names it has seen. A name that is new and exists was created; a known name
// that no longer exists was deleted; a known name whose change time equals its
// modification time had its content updated, otherwise only its status.
type Classifier struct {
	dir  string
	stat StatFunc

	mu    sync.Mutex
	known map[string]struct{}
}

// NewClassifier creates a classifier for dir that already knows names.
// A nil stat uses the file system.
func NewClassifier(dir string, names []string, stat StatFunc) *Classifier {
	if stat == nil {
		stat = statTimes
	}
	return &Classifier{
		dir:   dir,
		stat:  stat,
		known: lo.SliceToMap(names, func(n string) (string, struct{}) { return n, struct{}{} }),
	}
}

// Snapshot creates a classifier knowing the current entries of dir.
func Snapshot(dir string) (*Classifier, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.WithKind(errors.Wrapf(err, "read dir %s", dir), core.KindResource)
	}
	names := lo.Map(entries, func(e fs.DirEntry, _ int) string { return e.Name() })
	return NewClassifier(dir, names, nil), nil
}

// Classify classifies a notification about name. Stat failures other than
// a missing file are returned as errors.
func (c *Classifier) Classify(name string) (Event, error) {
	ctime, mtime, err := c.stat(filepath.Join(c.dir, name))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.known[name]

	switch {
	case errors.Is(err, fs.ErrNotExist):
		delete(c.known, name)
		return Event{Name: name, Kind: Deleted}, nil
	case err != nil:
		return Event{Name: name}, core.WithKind(errors.Wrapf(err, "stat %s", name), core.KindResource)
	case !seen:
		c.known[name] = struct{}{}
		return Event{Name: name, Kind: Created}, nil
	case ctime.Equal(mtime):
		return Event{Name: name, Kind: ContentUpdated}, nil
	default:
		return Event{Name: name, Kind: StatusUpdated}, nil
	}
}

// Known returns the names the classifier currently tracks, sorted.
func (c *Classifier) Known() []string {
	c.mu.Lock()
	names := lo.Keys(c.known)
	c.mu.Unlock()
	slices.Sort(names)
	return names
}
