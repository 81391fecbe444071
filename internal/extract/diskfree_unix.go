//go:build linux || darwin

package extract

import "golang.org/x/sys/unix"

// diskFree reports the free bytes available to unprivileged writers at
// path, or -1 when the filesystem cannot say. A variable so tests can
// pin the value.
var diskFree = func(path string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return -1
	}
	return int64(st.Bavail) * int64(st.Bsize)
}
