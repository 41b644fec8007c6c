//go:build !linux

package hpet

import (
	"time"

	"fortio.org/safecast"
)

var epoch = time.Now()

func readRaw() (uint64, error) {
	return safecast.Conv[uint64](int64(time.Since(epoch)))
}
