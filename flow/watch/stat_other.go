//go:build !linux

package watch

import (
	"os"
	"time"
)

// statTimes reports the modification time as change time where the platform
// does not expose one portably.
func statTimes(path string) (ctime, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return info.ModTime(), info.ModTime(), nil
}
