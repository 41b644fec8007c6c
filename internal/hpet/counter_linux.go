//go:build linux

package hpet

import (
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// readRaw samples CLOCK_MONOTONIC_RAW, which is not slewed by NTP.
func readRaw() (uint64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0, fmt.Errorf("clock_gettime: %w", err)
	}
	ns, err := safecast.Conv[uint64](ts.Nano())
	if err != nil {
		return 0, fmt.Errorf("clock_gettime: %w", err)
	}
	return ns, nil
}
