// Package workers implements a thread pool and task-set layer: a fixed
// worker set with per-worker mailboxes and work stealing, plus
// exclusive and concurrent task sets built on top of it.
package workers

import (
	// Imported for its side-effecting init(), which sets GOMAXPROCS from
	// the container's CPU quota (cgroup limits) before DefaultPoolSize
	// reads runtime.GOMAXPROCS(0).
	_ "go.uber.org/automaxprocs"
)
