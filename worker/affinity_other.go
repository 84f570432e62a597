//go:build !linux

package worker

import "go.uber.org/zap"

// pinSelf is a no-op outside Linux; sched_setaffinity has no portable
// equivalent and workers simply run wherever the Go scheduler puts them.
func pinSelf(self, nrThreads int, log *zap.Logger) {}
