//go:build linux

package watch

import (
	"os"
	"syscall"
	"time"
)

func statTimes(path string) (ctime, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	mtime = info.ModTime()
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec), mtime, nil
	}
	return mtime, mtime, nil
}
