package pool

import "time"

// nowUnix is split out so tests can see exactly what feeds Header.Crtime.
func nowUnix() int64 {
	return time.Now().Unix()
}
