package asyncrt

import (
	"errors"
	"time"
)

// ErrTimedOut is returned by WithTimeout when the deadline passes first.
var ErrTimedOut = errors.New("timed out")

// Return resolves immediately with err.
func Return(err error) Future {
	return FutureFunc(func(*Context) Poll { return Done(err) })
}

// Do runs fn on the first poll and resolves with its result.
func Do(fn func() error) Future {
	return FutureFunc(func(*Context) Poll { return Done(fn()) })
}

// Lazy builds the inner future on the first poll. Futures that capture the
// clock at construction, such as timeouts, should be wrapped so that their
// start is the moment the task reaches them.
func Lazy(build func() Future) Future {
	var inner Future
	return FutureFunc(func(cx *Context) Poll {
		if inner == nil {
			inner = build()
		}
		return inner.Poll(cx)
	})
}

// Seq runs futures one after another, stopping at the first error.
// Futures that complete immediately do not yield in between.
func Seq(fs ...Future) Future {
	i := 0
	return FutureFunc(func(cx *Context) Poll {
		for i < len(fs) {
			p := fs[i].Poll(cx)
			if !p.Ready() {
				return p
			}
			i++
			if p.Err() != nil {
				return p
			}
		}
		return Done(nil)
	})
}

// Loop runs body(0), body(1), ... n times, or forever when n is negative,
// stopping at the first error.
func Loop(n int, body func(i int) Future) Future {
	var (
		i   int
		cur Future
	)
	return FutureFunc(func(cx *Context) Poll {
		for n < 0 || i < n {
			if cur == nil {
				cur = body(i)
			}
			p := cur.Poll(cx)
			if !p.Ready() {
				return p
			}
			cur = nil
			i++
			if p.Err() != nil {
				return p
			}
		}
		return Done(nil)
	})
}

// Sleep resolves d after the first poll.
func Sleep(c Clock, d time.Duration) Future {
	return Lazy(func() Future { return NewTimeout(c, d) })
}

// Yield gives every other ready task one turn before resuming.
func Yield() Future {
	yielded := false
	return FutureFunc(func(cx *Context) Poll {
		if yielded {
			return Done(nil)
		}
		yielded = true
		cx.Waker().Wake()
		return Pending()
	})
}

// Until resolves once cond reports true, re-checking on every turn of the
// ready queue.
func Until(cond func() bool) Future {
	return FutureFunc(func(cx *Context) Poll {
		if cond() {
			return Done(nil)
		}
		cx.Waker().Wake()
		return Pending()
	})
}

// WithTimeout resolves with f's result, or ErrTimedOut if d passes first.
// f is abandoned on timeout and never polled again.
func WithTimeout(c Clock, d time.Duration, f Future) Future {
	var limit *Timeout
	return FutureFunc(func(cx *Context) Poll {
		if limit == nil {
			limit = NewTimeout(c, d)
		}
		if p := f.Poll(cx); p.Ready() {
			return p
		}
		if p := limit.Poll(cx); p.Ready() {
			return Done(ErrTimedOut)
		}
		return Pending()
	})
}
