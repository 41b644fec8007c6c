package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat periodically emits a kernel heartbeat carrying a load sample. A
// trace that keeps heartbeating without poll events points at a kernel
// stuck in an idle halt.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	load     func() string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartHeartbeat starts emitting every interval. load, when set, supplies
// the event detail, typically executor counters. It returns nil when the
// tracer is off or the interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration, load func() string) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		load:     load,
		stopCh:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var beats uint64
	for {
		select {
		case <-ticker.C:
			beats++
			detail := fmt.Sprintf("#%d", beats)
			if h.load != nil {
				detail += " " + h.load()
			}
			h.tracer.Emit(&Event{
				Time:   time.Now(),
				Kind:   KindHeartbeat,
				Scope:  ScopeKernel,
				Name:   "heartbeat",
				Detail: detail,
			})
		case <-h.stopCh:
			return
		}
	}
}

// Stop ends the heartbeat and waits for the goroutine. It is safe on a nil
// Heartbeat and safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
