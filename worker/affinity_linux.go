//go:build linux

package worker

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pinSelf pins the calling OS thread to one CPU out of the set the process
// is allowed to run on, spreading nrThreads workers round-robin across
// however many CPUs are actually available. Pinning is an optimization, not
// a correctness requirement: failures are logged and otherwise ignored.
func pinSelf(self, nrThreads int, log *zap.Logger) {
	var avail unix.CPUSet
	if err := unix.SchedGetaffinity(0, &avail); err != nil {
		if log != nil {
			log.Debug("could not read cpu affinity, skipping worker pinning", zap.Error(err))
		}
		return
	}

	var cpus []int
	for cpu := 0; cpu < unix.CPU_SETSIZE; cpu++ {
		if avail.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	if len(cpus) == 0 {
		return
	}

	cpu := cpus[self%len(cpus)]
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil && log != nil {
		log.Debug("worker pinning failed", zap.Int("worker", self), zap.Int("cpu", cpu), zap.Error(err))
	}
}
