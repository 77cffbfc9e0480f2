package common

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

var EnableLogging bool = false
var EnableDebug bool = false
var LogTimeout time.Duration

const (
	// size of a data page in byte
	PageSize = 4096
	// number of pages the log buffer can hold
	LogBufferPoolSize = 32
	// size of a log buffer in byte
	LogBufferSize = ((LogBufferPoolSize + 1) * PageSize)
)

func init() {
	// the page latches and the buffer pool, replacer and hash table
	// mutexes are go-deadlock ones (the virtual disk manager uses plain
	// sync mutexes). detection is off unless a test or a debug session
	// turns it on via EnableDeadlockChecks.
	deadlock.Opts.Disable = true
}

// EnableDeadlockChecks turns on lock-order and timeout based deadlock
// detection for every go-deadlock latch and mutex in the process.
func EnableDeadlockChecks(timeout time.Duration) {
	deadlock.Opts.Disable = false
	deadlock.Opts.DeadlockTimeout = timeout
}
